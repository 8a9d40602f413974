package validator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
)

func newTestService(t *testing.T, cfg speechlen.Config) *Service {
	t.Helper()
	svc, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func ptr(f float64) *float64 { return &f }

func repeatWords(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestServiceValidate(t *testing.T) {
	svc := newTestService(t, speechlen.DefaultConfig())

	t.Run("short text unchanged", func(t *testing.T) {
		res, err := svc.Validate(TrimRequest{Text: "one two three"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ValidatedText != "one two three" {
			t.Errorf("expected unchanged text, got %q", res.ValidatedText)
		}
		if res.AudioLength != 1.5 {
			t.Errorf("expected audio_length 1.5, got %v", res.AudioLength)
		}
		if res.Trimmed {
			t.Error("expected trimmed=false")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		res, err := svc.Validate(TrimRequest{Text: ""})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ValidatedText != "" || res.AudioLength != 0 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("long text trimmed, pre-trim length reported", func(t *testing.T) {
		res, err := svc.Validate(TrimRequest{Text: repeatWords(200)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := speechlen.CountWords(res.ValidatedText); got != 120 {
			t.Errorf("expected 120 words, got %d", got)
		}
		if res.AudioLength != 100 {
			t.Errorf("expected pre-trim audio_length 100, got %v", res.AudioLength)
		}
		if res.ValidatedAudioLength != 60 {
			t.Errorf("expected validated_audio_length 60, got %v", res.ValidatedAudioLength)
		}
		if !res.Trimmed {
			t.Error("expected trimmed=true")
		}
	})

	t.Run("supplied audio_length is echoed", func(t *testing.T) {
		res, err := svc.Validate(TrimRequest{Text: "one two three", AudioLength: ptr(90)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.AudioLength != 90 {
			t.Errorf("expected audio_length 90, got %v", res.AudioLength)
		}
		// Three words already fit in 120, so the trim is a no-op.
		if res.ValidatedText != "one two three" {
			t.Errorf("expected unchanged text, got %q", res.ValidatedText)
		}
	})

	t.Run("supplied audio_length below max skips trim", func(t *testing.T) {
		long := repeatWords(200)
		res, err := svc.Validate(TrimRequest{Text: long, AudioLength: ptr(10)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ValidatedText != long {
			t.Error("expected caller's audio_length to suppress trimming")
		}
	})

	t.Run("invalid audio_length", func(t *testing.T) {
		for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
			_, err := svc.Validate(TrimRequest{Text: "hi", AudioLength: ptr(v)})
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("audio_length %v: expected ErrInvalidRequest, got %v", v, err)
			}
		}
	})
}

func TestServiceCustomConfig(t *testing.T) {
	svc := newTestService(t, speechlen.Config{WordsPerSecond: 2, MaxDuration: 1})

	res, err := svc.Validate(TrimRequest{Text: "a b c d e"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ValidatedText != "b c" {
		t.Errorf("expected %q, got %q", "b c", res.ValidatedText)
	}
	if res.AudioLength != 2.5 {
		t.Errorf("expected 2.5, got %v", res.AudioLength)
	}
}

func TestServiceHugeMaxDuration(t *testing.T) {
	svc := newTestService(t, speechlen.Config{WordsPerSecond: 2, MaxDuration: 1e19})

	res, err := svc.Validate(TrimRequest{Text: "one two three", AudioLength: ptr(1e20)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ValidatedText != "one two three" || res.Trimmed {
		t.Errorf("expected text unchanged, got %+v", res)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService(speechlen.Config{WordsPerSecond: 0, MaxDuration: 60}, nil)
	if !errors.Is(err, speechlen.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}
