// Package validator serves the audio-length validation endpoint.
//
// A caller posts text destined for speech synthesis; the service estimates
// how long it would take to speak and, when that exceeds the configured
// maximum, returns a centered window of the text that fits.
package validator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
)

// ErrInvalidRequest is returned for requests the service cannot evaluate.
var ErrInvalidRequest = errors.New("validator: invalid request")

// TrimRequest is the validation input.
type TrimRequest struct {
	// Text is the candidate text to be spoken.
	Text string

	// AudioLength is a caller-supplied duration in seconds. When nil the
	// service estimates it from Text.
	AudioLength *float64
}

// TrimResult is the validation output.
type TrimResult struct {
	// ValidatedText is the text to synthesize (possibly trimmed).
	ValidatedText string `json:"validated_text"`

	// AudioLength is the duration the trim decision was based on: the
	// caller-supplied value, or the estimate of the original text.
	AudioLength float64 `json:"audio_length"`

	// ValidatedAudioLength is the estimate for ValidatedText.
	ValidatedAudioLength float64 `json:"validated_audio_length"`

	// Trimmed is true when ValidatedText differs from the input.
	Trimmed bool `json:"trimmed"`
}

// Service evaluates TrimRequests. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	est    *speechlen.Estimator
	logger *slog.Logger
}

// NewService builds a Service for cfg. A nil logger uses slog.Default.
func NewService(cfg speechlen.Config, logger *slog.Logger) (*Service, error) {
	est, err := speechlen.New(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		est:    est,
		logger: logger.With("component", "validator"),
	}, nil
}

// Config returns the estimation settings in use.
func (s *Service) Config() speechlen.Config {
	return s.est.Config()
}

// Validate estimates (or accepts) the duration and trims when it is over
// the maximum.
func (s *Service) Validate(req TrimRequest) (TrimResult, error) {
	length := s.est.Estimate(req.Text)
	if req.AudioLength != nil {
		length = *req.AudioLength
		if math.IsNaN(length) || math.IsInf(length, 0) || length < 0 {
			return TrimResult{}, fmt.Errorf("%w: audio_length must be a non-negative number", ErrInvalidRequest)
		}
	}

	text := req.Text
	if s.est.Exceeds(length) {
		text = s.est.Trim(req.Text)
	}

	res := TrimResult{
		ValidatedText:        text,
		AudioLength:          length,
		ValidatedAudioLength: s.est.Estimate(text),
		Trimmed:              text != req.Text,
	}

	if res.Trimmed {
		s.logger.Info("trimmed text",
			"audio_length", length,
			"validated_audio_length", res.ValidatedAudioLength,
			"words_in", speechlen.CountWords(req.Text),
			"words_out", speechlen.CountWords(text),
		)
	} else {
		s.logger.Debug("text within limit", "audio_length", length)
	}
	return res, nil
}
