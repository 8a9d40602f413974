// Package stt provides streaming speech-to-text.
package stt

import (
	"context"
	"errors"
)

// Errors
var (
	ErrNoAPIKey     = errors.New("stt: API key required")
	ErrNotConnected = errors.New("stt: not connected")
)

// Deepgram models.
const (
	ModelGeneral   = "nova-3-general"
	ModelPhoneCall = "nova-2-phonecall"
)

// KindSIP is the participant kind for telephony callers.
const KindSIP = "sip"

// ModelForParticipant picks a model suited to the participant's audio path.
// Telephony callers get the phone-call model.
func ModelForParticipant(kind string) string {
	if kind == KindSIP {
		return ModelPhoneCall
	}
	return ModelGeneral
}

// Transcript is one recognition result.
type Transcript struct {
	Text       string
	Confidence float64

	// Final marks a segment that will not be revised.
	Final bool

	// SpeechFinal marks the end of an utterance.
	SpeechFinal bool

	Start    float64 // seconds from stream start
	Duration float64 // seconds
}

// Transcriber streams audio in and transcripts out.
type Transcriber interface {
	// Connect opens the stream.
	Connect(ctx context.Context) error

	// SendAudio sends a chunk of PCM16LE audio.
	SendAudio(pcm []byte) error

	// Transcripts is closed when the stream ends.
	Transcripts() <-chan Transcript

	// Close ends the stream.
	Close() error
}
