// Package vad detects voice activity in PCM16LE audio.
package vad

import (
	"errors"

	"github.com/teslashibe/go-speechgate/pkg/pcm"
)

// ErrInvalidConfig is returned for unusable thresholds or frame counts.
var ErrInvalidConfig = errors.New("vad: invalid config")

// Event is a change in speech state.
type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventSpeechEnd
)

func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// Detector consumes audio frames and reports state changes.
type Detector interface {
	// Process consumes one frame of PCM16LE mono audio.
	Process(pcm16le []byte) Event

	// InSpeech reports the current state.
	InSpeech() bool

	// Reset clears state.
	Reset()

	// Clone returns a detector with the same settings and fresh state.
	Clone() Detector
}

// Config holds RMS detector settings. Thresholds are normalized RMS in [0,1].
type Config struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	SpeechFrames     int // consecutive loud frames to start speech
	SilenceFrames    int // consecutive quiet frames to end speech
}

// DefaultConfig suits 16kHz 20ms frames: ~60ms to start, ~600ms to end.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     3,
		SilenceFrames:    30,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.SpeechThreshold <= 0 || c.SpeechThreshold > 1 {
		return ErrInvalidConfig
	}
	if c.SilenceThreshold <= 0 || c.SilenceThreshold > c.SpeechThreshold {
		return ErrInvalidConfig
	}
	if c.SpeechFrames < 1 || c.SilenceFrames < 1 {
		return ErrInvalidConfig
	}
	return nil
}

// RMS is an energy-based detector with hysteresis. It is not safe for
// concurrent use; Clone one per session.
type RMS struct {
	cfg          Config
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// Load builds a detector, once per process. Sessions use Clone.
func Load(cfg Config) (*RMS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RMS{cfg: cfg}, nil
}

// Config returns the detector settings.
func (v *RMS) Config() Config {
	return v.cfg
}

func (v *RMS) Process(pcm16le []byte) Event {
	level := Level(pcm16le)

	if v.inSpeech {
		if level < v.cfg.SilenceThreshold {
			v.silenceCount++
			if v.silenceCount >= v.cfg.SilenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
				return EventSpeechEnd
			}
		} else {
			v.silenceCount = 0
		}
		return EventNone
	}

	if level >= v.cfg.SpeechThreshold {
		v.speechCount++
		if v.speechCount >= v.cfg.SpeechFrames {
			v.inSpeech = true
			v.speechCount = 0
			return EventSpeechStart
		}
	} else {
		v.speechCount = 0
	}
	return EventNone
}

func (v *RMS) InSpeech() bool { return v.inSpeech }

func (v *RMS) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

func (v *RMS) Clone() Detector {
	return &RMS{cfg: v.cfg}
}

// Level returns the normalized RMS of PCM16LE samples. A trailing odd
// byte is ignored.
func Level(pcm16le []byte) float64 {
	return pcm.RMS(pcm.BytesToSamples(pcm16le))
}

var _ Detector = (*RMS)(nil)
