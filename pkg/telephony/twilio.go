// Package telephony bridges Twilio voice calls into rooms.
//
// Twilio fetches TwiML from /twilio/voice when a call connects, which points
// a bidirectional media stream at /twilio/stream. Each stream joins the room
// "<prefix><CallSid>" as a SIP participant at 8kHz. Outbound calls are placed
// through the Twilio REST API and land on the same TwiML; that route is only
// mounted when a call token is configured.
package telephony

import (
	"crypto/subtle"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	twilio "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/teslashibe/go-speechgate/pkg/pcm"
	"github.com/teslashibe/go-speechgate/pkg/room"
)

// DefaultRoomPrefix is prepended to the CallSid to name a call's room.
const DefaultRoomPrefix = "call-"

// ErrNotConfigured is returned by NewBridge when credentials are missing.
var ErrNotConfigured = errors.New("telephony: twilio not configured")

// Config holds Twilio account settings.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// PublicURL is the externally reachable http(s) base of this server.
	// Twilio calls back into it for TwiML and the media stream.
	PublicURL string

	// CallToken guards POST /twilio/calls as a bearer token. Outbound
	// calling is disabled when it is empty.
	CallToken string

	RoomPrefix string
}

// Enabled reports whether every required setting is present.
func (c Config) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != "" && c.PublicURL != ""
}

// Validate checks that the bridge can be built from c.
func (c Config) Validate() error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return fmt.Errorf("telephony: public url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("telephony: public url %q must be an absolute http(s) URL", c.PublicURL)
	}
	return nil
}

// Dialer places an outbound call that fetches TwiML from twimlURL once
// answered.
type Dialer interface {
	Dial(to, twimlURL string) (sid string, err error)
}

type restDialer struct {
	client *twilio.RestClient
	from   string
}

func (d *restDialer) Dial(to, twimlURL string) (string, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.from)
	params.SetUrl(twimlURL)
	params.SetMethod("POST")

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if resp.Sid == nil {
		return "", errors.New("telephony: create call: empty sid")
	}
	return *resp.Sid, nil
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithDialer replaces the Twilio REST dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithSignatureValidation toggles X-Twilio-Signature checks on the voice
// webhook. Enabled by default.
func WithSignatureValidation(enabled bool) Option {
	return func(b *Bridge) { b.verify = enabled }
}

// Bridge serves the Twilio webhooks and media streams.
type Bridge struct {
	cfg    Config
	rooms  *room.Server
	dialer Dialer
	logger *slog.Logger
	verify bool

	base      string
	validator client.RequestValidator

	streams atomic.Uint64
	placed  atomic.Uint64
}

// NewBridge builds a bridge that hands calls to rooms.
func NewBridge(rooms *room.Server, cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RoomPrefix == "" {
		cfg.RoomPrefix = DefaultRoomPrefix
	}
	b := &Bridge{
		cfg:    cfg,
		rooms:  rooms,
		logger:    slog.Default(),
		verify:    true,
		base:      strings.TrimSuffix(cfg.PublicURL, "/"),
		validator: client.NewRequestValidator(cfg.AuthToken),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "telephony")
	if b.dialer == nil {
		b.dialer = &restDialer{
			client: twilio.NewRestClientWithParams(twilio.ClientParams{
				Username: cfg.AccountSID,
				Password: cfg.AuthToken,
			}),
			from: cfg.FromNumber,
		}
	}
	return b, nil
}

// RegisterRoutes mounts the Twilio routes under /twilio.
func (b *Bridge) RegisterRoutes(app *fiber.App) {
	g := app.Group("/twilio")
	if b.cfg.CallToken != "" {
		g.Post("/calls", b.requireToken, b.handleCall)
	}
	g.All("/voice", b.checkSignature, b.handleVoice)
	g.Get("/stream", b.upgrade, websocket.New(b.handleStream))
}

// RoomFor names the room a call joins.
func (b *Bridge) RoomFor(callSID string) string {
	return b.cfg.RoomPrefix + callSID
}

func (b *Bridge) voiceURL() string {
	return b.base + "/twilio/voice"
}

func (b *Bridge) streamURL() string {
	u := b.base + "/twilio/stream"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

type callRequest struct {
	To string `json:"to"`
}

type callResponse struct {
	SID     string `json:"sid"`
	Room    string `json:"room"`
	Message string `json:"message"`
}

func (b *Bridge) requireToken(c *fiber.Ctx) error {
	got := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(b.cfg.CallToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

func (b *Bridge) handleCall(c *fiber.Ctx) error {
	var req callRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if strings.TrimSpace(req.To) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`to` field is required"})
	}

	sid, err := b.dialer.Dial(req.To, b.voiceURL())
	if err != nil {
		b.logger.Error("outbound call failed", "to", req.To, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to create call"})
	}
	b.placed.Add(1)
	b.logger.Info("outbound call placed", "to", req.To, "call_sid", sid)
	return c.JSON(callResponse{SID: sid, Room: b.RoomFor(sid), Message: "call initiated"})
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// handleVoice answers Twilio's call webhook. Twilio sends CallSid and From
// as form fields on POST or as query parameters on GET.
func (b *Bridge) handleVoice(c *fiber.Ctx) error {
	callSID := c.FormValue("CallSid")
	if callSID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "CallSid missing"})
	}
	params := []twimlParameter{{Name: paramRoom, Value: b.RoomFor(callSID)}}
	if from := c.FormValue("From"); from != "" {
		params = append(params, twimlParameter{Name: paramFrom, Value: from})
	}

	doc, err := xml.Marshal(twimlResponse{
		Connect: twimlConnect{Stream: twimlStream{URL: b.streamURL(), Parameters: params}},
	})
	if err != nil {
		return err
	}
	c.Type("xml")
	return c.Send(append([]byte(xml.Header), doc...))
}

// checkSignature rejects webhooks not signed with the account's auth token.
// Twilio signs the public URL it requested plus any POST form fields.
func (b *Bridge) checkSignature(c *fiber.Ctx) error {
	if !b.verify {
		return c.Next()
	}
	params := make(map[string]string)
	if c.Method() == fiber.MethodPost {
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			params[string(k)] = string(v)
		})
	}
	if !b.validator.Validate(b.base+c.OriginalURL(), params, c.Get("X-Twilio-Signature")) {
		b.logger.Warn("rejected unsigned webhook", "path", c.Path(), "ip", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid twilio signature"})
	}
	return c.Next()
}

func (b *Bridge) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

func (b *Bridge) handleStream(c *websocket.Conn) {
	t := newMediaTransport(c, b.logger)
	start, err := t.awaitStart()
	if err != nil {
		b.logger.Warn("media stream ended before start", "error", err)
		return
	}

	roomName := start.CustomParameters[paramRoom]
	if roomName == "" {
		roomName = b.RoomFor(start.CallSID)
	}
	identity := start.CustomParameters[paramFrom]
	if identity == "" {
		identity = start.CallSID
	}
	if enc := start.MediaFormat.Encoding; enc != "" && enc != encodingULaw {
		b.logger.Warn("unexpected media encoding", "encoding", enc, "call_sid", start.CallSID)
	}

	b.streams.Add(1)
	b.logger.Info("media stream started", "call_sid", start.CallSID, "stream_sid", t.streamSID, "room", roomName)
	b.rooms.Serve(room.Spec{
		Room:       roomName,
		Identity:   identity,
		Kind:       room.KindSIP,
		SampleRate: pcm.RateTelephony,
	}, t)
	b.logger.Info("media stream ended", "call_sid", start.CallSID)
}

// Stats contains bridge counters.
type Stats struct {
	Streams     uint64 `json:"streams"`
	CallsPlaced uint64 `json:"calls_placed"`
}

// Stats returns a snapshot of bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{Streams: b.streams.Load(), CallsPlaced: b.placed.Load()}
}
