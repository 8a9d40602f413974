// Package tts provides a unified interface for text-to-speech providers.
//
// All providers implement Provider, so the agent can switch backends (or
// stack them in a fallback Chain) without changing caller code. Gated wraps
// any Provider and runs a text post-processor right before synthesis:
//
//	openai, _ := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithVoice(tts.VoiceAlloy))
//	gate := textproc.NewGate(remote, textproc.WithTimeout(5*time.Second))
//	provider := tts.NewGated(openai, gate)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, reply)
//	// result.Audio holds 24kHz mono PCM16
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio, returning chunks as they arrive.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a streaming audio response.
// Callers read until Read returns a nil chunk, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when the stream is done.
	Read() ([]byte, error)

	// Close stops the stream.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is the encoded audio.
	Audio []byte

	// Format describes the encoding.
	Format AudioFormat

	// Text is the text that was actually synthesized, after any gating.
	Text string

	// Duration is the playback duration, measured for PCM and estimated
	// from word count otherwise.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64
}

// AudioFormat describes audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding is an audio encoding name.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16, OpenAI "pcm"
	EncodingMP3   Encoding = "mp3"
	EncodingOpus  Encoding = "opus"
)

// PCMFormat returns the mono PCM16 format for a sample rate.
func PCMFormat(sampleRate int) AudioFormat {
	enc := EncodingPCM24
	if sampleRate == 16000 {
		enc = EncodingPCM16
	}
	return AudioFormat{Encoding: enc, SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// IsPCM reports whether the format is raw PCM.
func (f AudioFormat) IsPCM() bool {
	return f.Encoding == EncodingPCM16 || f.Encoding == EncodingPCM24
}

// PCMDuration returns the playback time of n bytes in format f.
// It returns 0 for compressed formats.
func PCMDuration(f AudioFormat, n int) time.Duration {
	if !f.IsPCM() || f.SampleRate <= 0 {
		return 0
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	bytesPerSec := f.SampleRate * channels * 2
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}
