package agent

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-speechgate/pkg/llm"
	"github.com/teslashibe/go-speechgate/pkg/room"
	"github.com/teslashibe/go-speechgate/pkg/tts"
	"github.com/teslashibe/go-speechgate/pkg/vad"
)

// Worker holds the process-wide pieces shared by every session: providers
// and the prewarmed VAD template.
type Worker struct {
	LLM    llm.Provider
	TTS    tts.Provider
	NewSTT TranscriberFactory
	VAD    vad.Detector

	Options []Option
	Logger  *slog.Logger
}

// Entrypoint returns the per-participant job: it starts an agent and
// registers a shutdown callback that closes it and logs session usage.
func (w *Worker) Entrypoint() room.EntrypointFunc {
	return func(ctx context.Context, job *room.JobContext) error {
		logger := w.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger = logger.With("room", job.Room, "session_id", job.Participant.SessionID())
		logger.Info("starting voice assistant", "identity", job.Participant.Identity(), "kind", job.Participant.Kind())

		opts := append([]Option{WithLogger(logger)}, w.Options...)
		a := New(w.LLM, w.TTS, w.NewSTT, w.VAD, opts...)

		a.Usage().OnUpdate(func(m TurnMetrics) {
			logger.Debug("turn metrics",
				"source", m.Source,
				"llm_first_token", m.LLMFirstToken,
				"tts_latency", m.TTSLatency,
				"tts_characters", m.TTSCharacters,
				"trimmed", m.Trimmed,
				"interrupted", m.Interrupted,
			)
		})

		job.AddShutdownCallback(func(context.Context) {
			if err := a.Close(); err != nil {
				logger.Warn("agent close failed", "error", err)
			}
			logger.Info("usage", a.Usage().Summary().LogAttrs()...)
		})

		return a.Start(ctx, job.Participant)
	}
}
