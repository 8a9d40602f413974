package textproc

import (
	"context"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
)

// Local trims text in-process with the same rules as the validation
// service. Use it when no remote validator is configured.
type Local struct {
	est *speechlen.Estimator
}

// NewLocal builds a Local processor for cfg.
func NewLocal(cfg speechlen.Config) (*Local, error) {
	est, err := speechlen.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Local{est: est}, nil
}

// Process trims text when its estimate exceeds the maximum duration.
func (l *Local) Process(_ context.Context, text string) (string, error) {
	if !l.est.Exceeds(l.est.Estimate(text)) {
		return text, nil
	}
	return l.est.Trim(text), nil
}

var _ Processor = (*Local)(nil)
