package stt

import (
	"context"
	"sync"
)

// Mock implements Transcriber for tests. Emit pushes transcripts.
type Mock struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	audio     int

	out chan Transcript
}

// NewMock returns an unconnected mock.
func NewMock() *Mock {
	return &Mock{out: make(chan Transcript, 16)}
}

func (m *Mock) Connect(context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) SendAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.audio += len(pcm)
	return nil
}

func (m *Mock) Transcripts() <-chan Transcript { return m.out }

// Emit delivers t to the reader. It is a no-op after Close.
func (m *Mock) Emit(t Transcript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.out <- t
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.out)
	}
	return nil
}

// AudioBytes returns the number of audio bytes received.
func (m *Mock) AudioBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// Connected reports whether Connect was called.
func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

var _ Transcriber = (*Mock)(nil)
