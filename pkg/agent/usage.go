package agent

import (
	"sync"
	"time"
)

// Source identifies what triggered a turn.
type Source string

const (
	SourceVoice Source = "voice"
	SourceChat  Source = "chat"
	SourceSay   Source = "say"
)

// TurnMetrics describes one spoken response.
type TurnMetrics struct {
	Source Source
	Start  time.Time

	// LLM
	LLMFirstToken    time.Duration // time to first token
	LLMDuration      time.Duration // time to full reply
	PromptTokens     int
	CompletionTokens int

	// TTS
	TTSLatency    time.Duration
	TTSCharacters int
	AudioDuration time.Duration
	Trimmed       bool // the gate shortened the text

	Interrupted bool
	Total       time.Duration
}

// UsageSummary aggregates a session.
type UsageSummary struct {
	Turns               int
	Interruptions       int
	TrimmedTurns        int
	LLMPromptTokens     int
	LLMCompletionTokens int
	TTSCharacters       int
	TTSAudioDuration    time.Duration
	STTAudioDuration    time.Duration
	AvgLLMFirstToken    time.Duration
	AvgTTSLatency       time.Duration
}

// LogAttrs returns the summary as slog key/value pairs.
func (s UsageSummary) LogAttrs() []any {
	return []any{
		"turns", s.Turns,
		"interruptions", s.Interruptions,
		"trimmed_turns", s.TrimmedTurns,
		"llm_prompt_tokens", s.LLMPromptTokens,
		"llm_completion_tokens", s.LLMCompletionTokens,
		"tts_characters", s.TTSCharacters,
		"tts_audio", s.TTSAudioDuration.Round(time.Millisecond).String(),
		"stt_audio", s.STTAudioDuration.Round(time.Millisecond).String(),
		"avg_llm_first_token", s.AvgLLMFirstToken.Round(time.Millisecond).String(),
		"avg_tts_latency", s.AvgTTSLatency.Round(time.Millisecond).String(),
	}
}

// UsageCollector accumulates per-turn metrics. It is goroutine-safe.
type UsageCollector struct {
	mu       sync.Mutex
	history  []TurnMetrics
	sttAudio time.Duration

	onUpdate func(TurnMetrics)
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{history: make([]TurnMetrics, 0, 16)}
}

// OnUpdate sets a callback fired for every collected turn.
func (u *UsageCollector) OnUpdate(fn func(TurnMetrics)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onUpdate = fn
}

// Collect records a finished turn.
func (u *UsageCollector) Collect(m TurnMetrics) {
	u.mu.Lock()
	u.history = append(u.history, m)
	fn := u.onUpdate
	u.mu.Unlock()

	if fn != nil {
		fn(m)
	}
}

// AddSTTAudio records audio sent to speech recognition.
func (u *UsageCollector) AddSTTAudio(d time.Duration) {
	u.mu.Lock()
	u.sttAudio += d
	u.mu.Unlock()
}

// Turns returns a copy of the collected turns.
func (u *UsageCollector) Turns() []TurnMetrics {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]TurnMetrics, len(u.history))
	copy(out, u.history)
	return out
}

// Summary aggregates everything collected so far.
func (u *UsageCollector) Summary() UsageSummary {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := UsageSummary{Turns: len(u.history), STTAudioDuration: u.sttAudio}
	var llmTurns, ttsTurns time.Duration
	for _, m := range u.history {
		if m.Interrupted {
			s.Interruptions++
		}
		if m.Trimmed {
			s.TrimmedTurns++
		}
		s.LLMPromptTokens += m.PromptTokens
		s.LLMCompletionTokens += m.CompletionTokens
		s.TTSCharacters += m.TTSCharacters
		s.TTSAudioDuration += m.AudioDuration
		if m.LLMFirstToken > 0 {
			s.AvgLLMFirstToken += m.LLMFirstToken
			llmTurns++
		}
		if m.TTSLatency > 0 {
			s.AvgTTSLatency += m.TTSLatency
			ttsTurns++
		}
	}
	if llmTurns > 0 {
		s.AvgLLMFirstToken /= llmTurns
	}
	if ttsTurns > 0 {
		s.AvgTTSLatency /= ttsTurns
	}
	return s
}
