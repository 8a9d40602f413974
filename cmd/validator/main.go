// validator: HTTP service that trims text to a maximum spoken duration.
//
// POST /validate_audio_length {"text": "...", "audio_length": 12.5}
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-speechgate/internal/config"
	"github.com/teslashibe/go-speechgate/internal/log"
	"github.com/teslashibe/go-speechgate/pkg/validator"
)

var (
	version     = "1.0.0"
	addr        = flag.String("addr", "", "Listen address (overrides VALIDATOR_ADDR)")
	wps         = flag.Float64("wps", 0, "Words per second (overrides WORDS_PER_SECOND)")
	maxDuration = flag.Float64("max-duration", 0, "Maximum duration in seconds (overrides MAX_DURATION)")
	accessLog   = flag.Bool("access-log", false, "Log every request")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ValidatorAddr = *addr
	}
	if *wps != 0 {
		cfg.WordsPerSecond = *wps
	}
	if *maxDuration != 0 {
		cfg.MaxDuration = *maxDuration
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info("speechgate validator starting", "version", version)

	svc, err := validator.NewService(cfg.Speech(), log.L())
	if err != nil {
		log.Error("invalid speech settings", "error", err)
		os.Exit(1)
	}
	srv := validator.NewServer(svc, validator.WithAccessLog(*accessLog))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.ValidatorAddr) }()

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}
