package llm

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Mock implements Provider for tests. Reply decides the answer for a
// conversation; the default echoes the last user message.
type Mock struct {
	Reply func(cc *ChatContext) (string, error)

	// Usage is reported on the final chunk when non-zero.
	Usage Usage

	mu    sync.Mutex
	calls []*ChatContext
}

// NewMock returns a mock that answers "You said: <last user text>".
func NewMock() *Mock {
	return &Mock{
		Reply: func(cc *ChatContext) (string, error) {
			msgs := cc.Messages()
			for i := len(msgs) - 1; i >= 0; i-- {
				if msgs[i].Role == RoleUser {
					return "You said: " + msgs[i].Text, nil
				}
			}
			return "Hello.", nil
		},
	}
}

// Chat records a snapshot of cc and streams the reply word by word.
func (m *Mock) Chat(_ context.Context, cc *ChatContext) (Stream, error) {
	snap := cc.Copy()
	m.mu.Lock()
	m.calls = append(m.calls, snap)
	m.mu.Unlock()

	reply, err := m.Reply(snap)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, w := range strings.SplitAfter(reply, " ") {
		if w == "" {
			continue
		}
		chunks = append(chunks, Chunk{Delta: w})
	}
	if m.Usage != (Usage{}) {
		u := m.Usage
		chunks = append(chunks, Chunk{Usage: &u})
	}
	return &sliceStream{chunks: chunks}, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Calls returns the conversations the mock was asked about.
func (m *Mock) Calls() []*ChatContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ChatContext, len(m.calls))
	copy(out, m.calls)
	return out
}

type sliceStream struct {
	chunks []Chunk
	i      int
}

func (s *sliceStream) Recv() (Chunk, error) {
	if s.i >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *sliceStream) Close() error { return nil }

var _ Provider = (*Mock)(nil)
