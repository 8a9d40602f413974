package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Route paths.
const (
	PathValidate = "/validate_audio_length"
	PathHealth   = "/healthz"
)

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	accessLog bool
}

// WithAccessLog enables per-request access logging.
func WithAccessLog(enabled bool) ServerOption {
	return func(o *serverOptions) { o.accessLog = enabled }
}

// Server exposes a Service over HTTP.
type Server struct {
	app *fiber.App
	svc *Service
}

// NewServer builds the fiber app and registers routes.
func NewServer(svc *Service, opts ...ServerOption) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := fiber.New(fiber.Config{
		AppName:               "speechgate-validator",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if o.accessLog {
		app.Use(logger.New())
	}

	s := &Server{app: app, svc: svc}
	app.Post(PathValidate, s.handleValidate)
	app.Get(PathHealth, s.handleHealth)
	return s
}

// App returns the underlying fiber app (useful for app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.svc.logger.Info("validator listening",
		"addr", addr,
		"words_per_second", s.svc.Config().WordsPerSecond,
		"max_duration", s.svc.Config().MaxDuration,
	)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// wireRequest mirrors TrimRequest on the wire. Text is a pointer so a
// missing field can be told apart from an empty string.
type wireRequest struct {
	Text        *string  `json:"text"`
	AudioLength *float64 `json:"audio_length"`
}

func (s *Server) handleValidate(c *fiber.Ctx) error {
	var in wireRequest
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return badRequest(c, fmt.Sprintf("invalid JSON body: %v", err))
	}
	if in.Text == nil {
		return badRequest(c, "`text` field is required")
	}

	res, err := s.svc.Validate(TrimRequest{Text: *in.Text, AudioLength: in.AudioLength})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return badRequest(c, err.Error())
		}
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
