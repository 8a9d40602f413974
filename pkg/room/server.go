package room

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound frame
	maxMessageSize = 1 << 20

	defaultShutdownTimeout = 5 * time.Second
)

const (
	localIdentity = "identity"
	localKind     = "kind"
	localRate     = "rate"
)

// maxSampleRate bounds the rate a client may request.
const maxSampleRate = 48000

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAccessLog enables per-request access logging.
func WithAccessLog(enabled bool) Option {
	return func(s *Server) { s.accessLog = enabled }
}

// WithShutdownTimeout bounds how long a departed participant's entrypoint
// and shutdown callbacks may take.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// Server accepts participants and runs the entrypoint for each.
type Server struct {
	app   *fiber.App
	entry EntrypointFunc

	logger          *slog.Logger
	accessLog       bool
	shutdownTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	rooms map[string]map[string]*Participant

	messagesReceived atomic.Uint64
	chatMessages     atomic.Uint64
}

// NewServer builds the fiber app. entry may be nil.
func NewServer(entry EntrypointFunc, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		entry:           entry,
		logger:          slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
		ctx:             ctx,
		cancel:          cancel,
		rooms:           make(map[string]map[string]*Participant),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "room")

	app := fiber.New(fiber.Config{
		AppName:               "speechgate-agent",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if s.accessLog {
		app.Use(logger.New())
	}

	s.app = app
	s.RegisterRoutes(app)
	return s
}

// RegisterRoutes registers the websocket, rooms API and health routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/rooms", s.handleListRooms)
	app.Get("/rooms/:room", s.handleGetRoom)
	app.Get("/rooms/:room/ws", s.upgrade, websocket.New(s.handleParticipant))
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("room server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown cancels every participant's job and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	kind, ok := ParseKind(c.Query("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind must be standard or sip"})
	}
	rate := c.QueryInt("rate", 0)
	if rate < 0 || rate > maxSampleRate {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rate out of range"})
	}
	c.Locals(localKind, kind)
	c.Locals(localIdentity, c.Query("identity"))
	c.Locals(localRate, rate)
	return c.Next()
}

func (s *Server) handleParticipant(c *websocket.Conn) {
	kind, _ := c.Locals(localKind).(ParticipantKind)
	identity, _ := c.Locals(localIdentity).(string)
	rate, _ := c.Locals(localRate).(int)

	spec := Spec{Room: c.Params("room"), Identity: identity, Kind: kind, SampleRate: rate}
	s.Serve(spec, newWSTransport(c, s.logger.With("room", spec.Room)))
}

// Serve joins a participant described by spec and pumps t until it fails or
// closes. The entrypoint runs concurrently. Serve returns after the
// participant's shutdown callbacks have run and it has left the room.
func (s *Server) Serve(spec Spec, t Transport) {
	kind := spec.Kind
	if kind == "" {
		kind = KindStandard
	}
	sessionID := uuid.NewString()
	identity := spec.Identity
	if identity == "" {
		identity = sessionID
	}
	p := newParticipant(sessionID, identity, kind, spec.Room, spec.SampleRate)
	log := s.logger.With("room", p.room, "identity", identity, "session_id", sessionID, "kind", kind, "sample_rate", p.sampleRate)

	count := s.join(p)
	log.Info("participant joined", "participants", count)

	ctx, cancel := context.WithCancel(s.ctx)
	job := &JobContext{Room: p.room, Participant: p}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(t, p)
	}()
	_ = p.SendEvent(Event{Type: EventSession, SessionID: sessionID})

	entryDone := make(chan struct{})
	go func() {
		defer close(entryDone)
		if s.entry == nil {
			return
		}
		if err := s.entry(ctx, job); err != nil {
			log.Error("entrypoint failed", "error", err)
		}
	}()

	s.readPump(t, p, log)

	cancel()
	p.close()
	<-writerDone
	if err := t.Close(); err != nil {
		log.Debug("transport close", "error", err)
	}

	select {
	case <-entryDone:
	case <-time.After(s.shutdownTimeout):
		log.Warn("entrypoint still running after disconnect")
	}

	sctx, scancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	job.runShutdown(sctx)
	scancel()

	count = s.leave(p)
	log.Info("participant left", "participants", count)
}

// readPump blocks until the transport fails or closes.
func (s *Server) readPump(t Transport, p *Participant, log *slog.Logger) {
	for {
		in, err := t.Receive()
		if err != nil {
			log.Debug("receive ended", "error", err)
			return
		}
		s.messagesReceived.Add(1)

		switch {
		case in.Audio != nil:
			p.deliverAudio(in.Audio)
		case in.Chat != "":
			s.handleChat(p, in.Chat, log)
		}
	}
}

func (s *Server) handleChat(p *Participant, msg string, log *slog.Logger) {
	s.chatMessages.Add(1)
	if !p.deliverChat(msg) {
		log.Warn("chat queue full, message dropped")
	}
	s.Broadcast(p.room, Event{Type: EventChat, Message: msg, From: p.identity}, p.sessionID)
}

// writePump is the only writer on the transport.
func (s *Server) writePump(t Transport, p *Participant) {
	pinger, canPing := t.(Pinger)
	var tick <-chan time.Time
	if canPing {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-p.done:
			return

		case f := <-p.send:
			var err error
			if f.event != nil {
				err = t.SendEvent(*f.event)
			} else {
				err = t.SendAudio(f.audio)
			}
			if err != nil {
				p.close()
				return
			}

		case <-tick:
			if err := pinger.Ping(); err != nil {
				p.close()
				return
			}
		}
	}
}

func (s *Server) join(p *Participant) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[p.room]
	if !ok {
		r = make(map[string]*Participant)
		s.rooms[p.room] = r
	}
	r[p.sessionID] = p
	return len(r)
}

func (s *Server) leave(p *Participant) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[p.room]
	delete(r, p.sessionID)
	if len(r) == 0 {
		delete(s.rooms, p.room)
	}
	return len(r)
}

// Broadcast sends ev to every participant in room except the one with
// session id exclude.
func (s *Server) Broadcast(room string, ev Event, exclude string) {
	for _, p := range s.Participants(room) {
		if p.sessionID == exclude {
			continue
		}
		if err := p.SendEvent(ev); err != nil {
			s.logger.Debug("broadcast failed", "room", room, "session_id", p.sessionID, "error", err)
		}
	}
}

// Participants returns the participants in room, oldest first.
func (s *Server) Participants(room string) []*Participant {
	s.mu.RLock()
	out := make([]*Participant, 0, len(s.rooms[room]))
	for _, p := range s.rooms[room] {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].joined.Before(out[j].joined) })
	return out
}

// Stats contains server statistics.
type Stats struct {
	Rooms            int    `json:"rooms"`
	Participants     int    `json:"participants"`
	MessagesReceived uint64 `json:"messages_received"`
	ChatMessages     uint64 `json:"chat_messages"`
}

// Stats returns a snapshot of server statistics.
func (s *Server) Stats() Stats {
	s.mu.RLock()
	st := Stats{Rooms: len(s.rooms)}
	for _, r := range s.rooms {
		st.Participants += len(r)
	}
	s.mu.RUnlock()
	st.MessagesReceived = s.messagesReceived.Load()
	st.ChatMessages = s.chatMessages.Load()
	return st
}

func (s *Server) handleListRooms(c *fiber.Ctx) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	return c.JSON(fiber.Map{
		"rooms": names,
		"stats": s.Stats(),
	})
}

func (s *Server) handleGetRoom(c *fiber.Ctx) error {
	ps := s.Participants(c.Params("room"))
	if len(ps) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	infos := make([]Info, 0, len(ps))
	for _, p := range ps {
		infos = append(infos, p.Info())
	}
	return c.JSON(fiber.Map{
		"room":         c.Params("room"),
		"participants": infos,
	})
}
