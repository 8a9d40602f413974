// agent: voice assistant worker. Participants join rooms over websockets,
// or dial in through Twilio, and each gets an agent that listens, thinks
// and speaks. Replies are run
// through the validation service (or local trimming) before synthesis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-speechgate/internal/config"
	"github.com/teslashibe/go-speechgate/internal/httpc"
	"github.com/teslashibe/go-speechgate/internal/log"
	"github.com/teslashibe/go-speechgate/pkg/agent"
	"github.com/teslashibe/go-speechgate/pkg/llm"
	"github.com/teslashibe/go-speechgate/pkg/room"
	"github.com/teslashibe/go-speechgate/pkg/stt"
	"github.com/teslashibe/go-speechgate/pkg/telephony"
	"github.com/teslashibe/go-speechgate/pkg/textproc"
	"github.com/teslashibe/go-speechgate/pkg/tts"
	"github.com/teslashibe/go-speechgate/pkg/vad"
)

var (
	version   = "1.0.0"
	addr      = flag.String("addr", "", "Listen address (overrides AGENT_ADDR)")
	accessLog = flag.Bool("access-log", false, "Log every HTTP request")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.AgentAddr = *addr
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.ValidateAgent(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info("speechgate agent starting", "version", version)

	worker, cleanup, err := newWorker(cfg, log.L())
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := room.NewServer(worker.Entrypoint(),
		room.WithLogger(log.L()),
		room.WithAccessLog(*accessLog),
	)
	if tcfg := cfg.Telephony(); tcfg.Enabled() {
		bridge, err := telephony.NewBridge(srv, tcfg, telephony.WithLogger(log.L()))
		if err != nil {
			log.Error("telephony setup failed", "error", err)
			os.Exit(1)
		}
		bridge.RegisterRoutes(srv.App())
		log.Info("twilio bridge enabled", "public_url", tcfg.PublicURL, "from", tcfg.FromNumber)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.AgentAddr) }()

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}

// newWorker builds the process-wide providers and prewarms the VAD.
func newWorker(cfg config.Config, logger *slog.Logger) (*agent.Worker, func(), error) {
	det, err := vad.Load(vad.DefaultConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("load vad: %w", err)
	}

	chat, err := llm.NewOpenAI(
		llm.WithAPIKey(cfg.OpenAIKey),
		llm.WithModel(cfg.LLMModel),
		llm.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: %w", err)
	}

	// tts-1 answers fastest; tts-1-hd is a separate quota and covers for it.
	var voices []tts.Provider
	for _, model := range []string{tts.ModelTTS1, tts.ModelTTS1HD} {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIKey),
			tts.WithVoice(cfg.TTSVoice),
			tts.WithModel(model),
			tts.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("tts: %w", err)
		}
		voices = append(voices, p)
	}
	speech, err := tts.NewChainWithLogger(logger, voices...)
	if err != nil {
		return nil, nil, fmt.Errorf("tts: %w", err)
	}

	proc, err := newProcessor(cfg)
	if err != nil {
		return nil, nil, err
	}
	gate := textproc.NewGate(textproc.Chain{textproc.Speakable{}, proc},
		textproc.WithTimeout(cfg.ValidatorTimeout),
		textproc.WithLogger(logger),
	)
	gated := tts.NewGated(speech, gate).WithWordsPerSecond(cfg.WordsPerSecond)

	newSTT := func(model string, sampleRate int) (stt.Transcriber, error) {
		return stt.NewDeepgram(
			stt.WithAPIKey(cfg.DeepgramKey),
			stt.WithModel(model),
			stt.WithSampleRate(sampleRate),
			stt.WithLogger(logger),
		)
	}

	w := &agent.Worker{
		LLM:    chat,
		TTS:    gated,
		NewSTT: newSTT,
		VAD:    det,
		Logger: logger,
		Options: []agent.Option{
			agent.WithSystemPrompt(cfg.SystemPrompt),
			agent.WithGreeting(cfg.Greeting),
		},
	}
	cleanup := func() {
		_ = chat.Close()
		_ = gated.Close()
	}
	return w, cleanup, nil
}

// newProcessor selects the remote validation service when VALIDATOR_URL is
// set, and in-process trimming otherwise.
func newProcessor(cfg config.Config) (textproc.Processor, error) {
	if cfg.ValidatorURL == "" {
		log.Info("validator URL not set, trimming locally",
			"words_per_second", cfg.WordsPerSecond,
			"max_duration", cfg.MaxDuration,
		)
		local, err := textproc.NewLocal(cfg.Speech())
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	remote, err := textproc.NewRemote(cfg.ValidatorURL,
		textproc.WithHTTPClient(httpc.NewClient(cfg.ValidatorTimeout)),
	)
	if err != nil {
		return nil, err
	}
	log.Info("using validation service", "url", remote.URL())
	return remote, nil
}
