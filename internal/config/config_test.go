package config

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ValidatorAddr != DefaultValidatorAddr {
		t.Errorf("expected %s, got %s", DefaultValidatorAddr, cfg.ValidatorAddr)
	}
	if cfg.WordsPerSecond != 2 || cfg.MaxDuration != 60 {
		t.Errorf("expected 2 wps / 60s, got %v / %v", cfg.WordsPerSecond, cfg.MaxDuration)
	}
	if cfg.ValidatorTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.ValidatorTimeout)
	}
	if cfg.ValidatorURL != "" {
		t.Errorf("expected empty validator URL, got %q", cfg.ValidatorURL)
	}
	if cfg.Greeting != DefaultGreeting {
		t.Errorf("unexpected greeting %q", cfg.Greeting)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"WORDS_PER_SECOND":  "2.5",
		"MAX_DURATION":      "30",
		"VALIDATOR_URL":     "http://validator:5000/validate_audio_length",
		"VALIDATOR_TIMEOUT": "750ms",
		"LOG_FORMAT":        "json",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WordsPerSecond != 2.5 || cfg.MaxDuration != 30 {
		t.Errorf("unexpected speech settings %+v", cfg.Speech())
	}
	if cfg.ValidatorTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.ValidatorTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected json log format, got %s", cfg.LogFormat)
	}
}

func TestFromEnvFailsFast(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"zero rate", map[string]string{"WORDS_PER_SECOND": "0"}, speechlen.ErrInvalidRate},
		{"negative duration", map[string]string{"MAX_DURATION": "-10"}, speechlen.ErrInvalidMaxDuration},
		{"unparsable rate", map[string]string{"WORDS_PER_SECOND": "fast"}, nil},
		{"bad timeout", map[string]string{"VALIDATOR_TIMEOUT": "soon"}, nil},
		{"zero timeout", map[string]string{"VALIDATOR_TIMEOUT": "0s"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateAgent(t *testing.T) {
	cfg, _ := FromEnv(envMap(nil))
	if err := cfg.ValidateAgent(); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}

	cfg.OpenAIKey = "sk-test"
	if err := cfg.ValidateAgent(); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey for deepgram, got %v", err)
	}

	cfg.DeepgramKey = "dg-test"
	if err := cfg.ValidateAgent(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTelephonySettings(t *testing.T) {
	base := map[string]string{
		"OPENAI_API_KEY":   "sk-test",
		"DEEPGRAM_API_KEY": "dg-test",
	}

	cfg, err := FromEnv(envMap(base))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telephony().Enabled() {
		t.Error("telephony enabled without settings")
	}

	full := map[string]string{
		"TWILIO_ACCOUNT_SID": "AC123",
		"TWILIO_AUTH_TOKEN":  "secret",
		"TWILIO_FROM_NUMBER": "+15550000",
		"PUBLIC_URL":         "https://agent.example.com",
		"TWILIO_CALL_TOKEN":  "call-secret",
	}
	for k, v := range base {
		full[k] = v
	}
	cfg, err = FromEnv(envMap(full))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Telephony().Enabled() {
		t.Error("telephony not enabled")
	}
	if cfg.Telephony().CallToken != "call-secret" {
		t.Errorf("call token = %q", cfg.Telephony().CallToken)
	}
	if err := cfg.ValidateAgent(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.TwilioAuthToken = ""
	if err := cfg.ValidateAgent(); err == nil {
		t.Error("expected error for partial twilio settings")
	}
}
