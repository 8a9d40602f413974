package tts

import (
	"context"
	"time"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
	"github.com/teslashibe/go-speechgate/pkg/textproc"
)

// Gated runs every text through a textproc.Gate before handing it to the
// wrapped provider. Gate failures never reach the caller; the gate falls
// back to the original text.
type Gated struct {
	Provider
	gate           *textproc.Gate
	wordsPerSecond float64
}

// NewGated wraps p. Durations missing from p's results are estimated at
// speechlen.DefaultWordsPerSecond.
func NewGated(p Provider, gate *textproc.Gate) *Gated {
	return &Gated{Provider: p, gate: gate, wordsPerSecond: speechlen.DefaultWordsPerSecond}
}

// WithWordsPerSecond sets the rate used to estimate missing durations.
func (g *Gated) WithWordsPerSecond(wps float64) *Gated {
	if wps > 0 {
		g.wordsPerSecond = wps
	}
	return g
}

// Synthesize gates text, then synthesizes it.
func (g *Gated) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = g.gate.Apply(ctx, text)
	res, err := g.Provider.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	res.Text = text
	if res.Duration == 0 {
		if secs, err := speechlen.Estimate(text, g.wordsPerSecond); err == nil {
			res.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	return res, nil
}

// Stream gates text, then opens a stream for it.
func (g *Gated) Stream(ctx context.Context, text string) (AudioStream, error) {
	return g.Provider.Stream(ctx, g.gate.Apply(ctx, text))
}

var _ Provider = (*Gated)(nil)
