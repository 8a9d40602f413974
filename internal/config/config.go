// Package config loads process configuration for go-speechgate commands.
//
// Values come from the environment, optionally seeded from a .env file in the
// working directory. Numeric values are validated up front so a bad rate or
// threshold stops the process at startup instead of producing nonsensical
// durations later.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-speechgate/pkg/agent"
	"github.com/teslashibe/go-speechgate/pkg/llm"
	"github.com/teslashibe/go-speechgate/pkg/speechlen"
	"github.com/teslashibe/go-speechgate/pkg/telephony"
	"github.com/teslashibe/go-speechgate/pkg/tts"
)

// Defaults.
const (
	DefaultValidatorAddr    = ":5000"
	DefaultAgentAddr        = ":8080"
	DefaultValidatorTimeout = 5 * time.Second
	DefaultLLMModel         = llm.DefaultModel
	DefaultTTSVoice         = tts.VoiceAlloy
	DefaultGreeting         = agent.DefaultGreeting
	DefaultSystemPrompt     = agent.DefaultSystemPrompt
)

// ErrMissingKey is returned by ValidateAgent when a provider key is absent.
var ErrMissingKey = errors.New("config: missing API key")

// Config holds all process settings.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Validation service
	ValidatorAddr  string
	WordsPerSecond float64
	MaxDuration    float64

	// Agent side
	AgentAddr        string
	ValidatorURL     string // empty selects in-process trimming
	ValidatorTimeout time.Duration
	SystemPrompt     string
	Greeting         string

	// Providers
	OpenAIKey   string
	LLMModel    string
	TTSVoice    string
	DeepgramKey string

	// Telephony, enabled when all four are set
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	PublicURL        string
	TwilioCallToken  string // enables POST /twilio/calls
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		LogLevel:         orDefault(getenv("LOG_LEVEL"), "info"),
		LogFormat:        orDefault(getenv("LOG_FORMAT"), "text"),
		ValidatorAddr:    orDefault(getenv("VALIDATOR_ADDR"), DefaultValidatorAddr),
		AgentAddr:        orDefault(getenv("AGENT_ADDR"), DefaultAgentAddr),
		ValidatorURL:     getenv("VALIDATOR_URL"),
		SystemPrompt:     orDefault(getenv("SYSTEM_PROMPT"), DefaultSystemPrompt),
		Greeting:         orDefault(getenv("AGENT_GREETING"), DefaultGreeting),
		OpenAIKey:        getenv("OPENAI_API_KEY"),
		LLMModel:         orDefault(getenv("OPENAI_LLM_MODEL"), DefaultLLMModel),
		TTSVoice:         orDefault(getenv("OPENAI_TTS_VOICE"), DefaultTTSVoice),
		DeepgramKey:      getenv("DEEPGRAM_API_KEY"),
		TwilioAccountSID: getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: getenv("TWILIO_FROM_NUMBER"),
		PublicURL:        getenv("PUBLIC_URL"),
		TwilioCallToken:  getenv("TWILIO_CALL_TOKEN"),
		WordsPerSecond:   speechlen.DefaultWordsPerSecond,
		MaxDuration:      speechlen.DefaultMaxDuration,
		ValidatorTimeout: DefaultValidatorTimeout,
	}

	var err error
	if cfg.WordsPerSecond, err = floatEnv(getenv, "WORDS_PER_SECOND", cfg.WordsPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.MaxDuration, err = floatEnv(getenv, "MAX_DURATION", cfg.MaxDuration); err != nil {
		return Config{}, err
	}
	if v := getenv("VALIDATOR_TIMEOUT"); v != "" {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return Config{}, fmt.Errorf("config: VALIDATOR_TIMEOUT: %w", perr)
		}
		cfg.ValidatorTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Speech returns the estimation/trimming settings.
func (c Config) Speech() speechlen.Config {
	return speechlen.Config{
		WordsPerSecond: c.WordsPerSecond,
		MaxDuration:    c.MaxDuration,
	}
}

// Telephony returns the Twilio bridge settings.
func (c Config) Telephony() telephony.Config {
	return telephony.Config{
		AccountSID: c.TwilioAccountSID,
		AuthToken:  c.TwilioAuthToken,
		FromNumber: c.TwilioFromNumber,
		PublicURL:  c.PublicURL,
		CallToken:  c.TwilioCallToken,
	}
}

// Validate checks settings shared by every command.
func (c Config) Validate() error {
	if err := c.Speech().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.ValidatorTimeout <= 0 {
		return errors.New("config: validator timeout must be positive")
	}
	return nil
}

// ValidateAgent additionally requires the provider keys the agent needs.
func (c Config) ValidateAgent() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingKey)
	}
	if c.DeepgramKey == "" {
		return fmt.Errorf("%w: DEEPGRAM_API_KEY", ErrMissingKey)
	}
	// Partial Twilio settings are a mistake; none at all disables telephony.
	if t := c.Telephony(); t != (telephony.Config{}) {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func floatEnv(getenv func(string) string, key string, def float64) (float64, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
