// Package textproc post-processes text right before speech synthesis.
//
// A Processor may rewrite text (for example, trim it to a maximum spoken
// duration). The Gate runs a Processor under a bounded timeout and always
// yields usable text: if the processor fails for any reason, the original
// text passes through unchanged and the failure is only logged.
//
//	remote, _ := textproc.NewRemote("http://validator:5000/validate_audio_length")
//	gate := textproc.NewGate(remote, textproc.WithTimeout(5*time.Second))
//	text = gate.Apply(ctx, text)
package textproc

import (
	"context"
	"fmt"
)

// Processor rewrites text destined for synthesis.
type Processor interface {
	// Process returns the text to speak, or an error if it could not decide.
	Process(ctx context.Context, text string) (string, error)
}

// Func adapts a plain function to Processor.
type Func func(ctx context.Context, text string) (string, error)

// Process calls f.
func (f Func) Process(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Passthrough returns text unchanged.
type Passthrough struct{}

// Process returns text.
func (Passthrough) Process(_ context.Context, text string) (string, error) {
	return text, nil
}

// Chain runs processors in order, feeding each the previous output.
// The first error stops the chain.
type Chain []Processor

// Process runs every processor in the chain.
func (c Chain) Process(ctx context.Context, text string) (string, error) {
	for i, p := range c {
		out, err := p.Process(ctx, text)
		if err != nil {
			return "", fmt.Errorf("textproc: chain step %d: %w", i, err)
		}
		text = out
	}
	return text, nil
}

var (
	_ Processor = Func(nil)
	_ Processor = Passthrough{}
	_ Processor = Chain(nil)
)
