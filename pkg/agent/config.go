package agent

import (
	"log/slog"
	"time"
)

// Defaults.
const (
	DefaultGreeting     = "Hey, how can I help you today?"
	DefaultSystemPrompt = "You are a voice assistant. Your interface with users will be voice. " +
		"You should use short and concise responses, and avoid unpronounceable punctuation."
	DefaultInputSampleRate = 16000
	DefaultFrameDuration   = 20 * time.Millisecond
)

// Config holds agent configuration.
type Config struct {
	// SystemPrompt seeds the chat context.
	SystemPrompt string

	// Greeting is spoken on Start. Empty disables it.
	Greeting string

	// InputSampleRate is the participant's PCM16 mono input rate.
	InputSampleRate int

	// FrameDuration is the size of published audio frames.
	FrameDuration time.Duration

	// Pace publishes audio frames in real time so speech can be
	// interrupted mid-utterance.
	Pace bool

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:    DefaultSystemPrompt,
		Greeting:        DefaultGreeting,
		InputSampleRate: DefaultInputSampleRate,
		FrameDuration:   DefaultFrameDuration,
		Pace:            true,
		Logger:          slog.Default(),
	}
}

// Option is a functional option for Config.
type Option func(*Config)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(p string) Option { return func(c *Config) { c.SystemPrompt = p } }

// WithGreeting sets the greeting spoken on Start.
func WithGreeting(g string) Option { return func(c *Config) { c.Greeting = g } }

// WithPacing toggles real-time audio pacing.
func WithPacing(enabled bool) Option { return func(c *Config) { c.Pace = enabled } }

// WithFrameDuration sets the published frame size.
func WithFrameDuration(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.FrameDuration = d
		}
	}
}

// WithInputSampleRate sets the participant input rate.
func WithInputSampleRate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.InputSampleRate = rate
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }
