package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the Deepgram live transcription endpoint.
const DefaultURL = "wss://api.deepgram.com/v1/listen"

const keepAliveInterval = 8 * time.Second

// Config holds Deepgram configuration.
type Config struct {
	APIKey     string
	URL        string
	Model      string
	Language   string
	Encoding   string
	SampleRate int
	Channels   int
	Logger     *slog.Logger
}

// DefaultConfig returns 16kHz mono linear16 with the general model.
func DefaultConfig() Config {
	return Config{
		URL:        DefaultURL,
		Model:      ModelGeneral,
		Language:   "en-US",
		Encoding:   "linear16",
		SampleRate: 16000,
		Channels:   1,
		Logger:     slog.Default(),
	}
}

// Option is a functional option for Config.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithURL overrides the websocket endpoint.
func WithURL(u string) Option { return func(c *Config) { c.URL = u } }

// WithModel sets the recognition model.
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

// WithLanguage sets the language code.
func WithLanguage(lang string) Option { return func(c *Config) { c.Language = lang } }

// WithSampleRate sets the input sample rate.
func WithSampleRate(rate int) Option { return func(c *Config) { c.SampleRate = rate } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// Deepgram implements Transcriber over the Deepgram live websocket API.
type Deepgram struct {
	config Config
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	out       chan Transcript
	done      chan struct{}
	closeOnce sync.Once

	audioBytes atomic.Int64
}

// NewDeepgram builds an unconnected client.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Deepgram{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.deepgram", "model", cfg.Model),
		out:    make(chan Transcript, 32),
		done:   make(chan struct{}),
	}, nil
}

// Config returns the client configuration.
func (d *Deepgram) Config() Config {
	return d.config
}

func (d *Deepgram) endpoint() (string, error) {
	u, err := url.Parse(d.config.URL)
	if err != nil {
		return "", fmt.Errorf("stt: parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", d.config.Encoding)
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", strconv.Itoa(d.config.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials Deepgram and starts reading transcripts.
func (d *Deepgram) Connect(ctx context.Context) error {
	endpoint, err := d.endpoint()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stt: dial deepgram: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("stt: dial deepgram: %w", err)
	}
	d.conn = conn
	d.logger.Info("connected")

	go d.readLoop()
	go d.keepAlive()
	return nil
}

// SendAudio writes one binary audio frame.
func (d *Deepgram) SendAudio(pcm []byte) error {
	if d.conn == nil {
		return ErrNotConnected
	}
	if len(pcm) == 0 {
		return nil
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("stt: send audio: %w", err)
	}
	d.audioBytes.Add(int64(len(pcm)))
	return nil
}

// AudioSeconds returns how much audio has been sent.
func (d *Deepgram) AudioSeconds() float64 {
	bytesPerSec := d.config.SampleRate * 2 * d.config.Channels
	if bytesPerSec == 0 {
		return 0
	}
	return float64(d.audioBytes.Load()) / float64(bytesPerSec)
}

// Transcripts returns the transcript channel.
func (d *Deepgram) Transcripts() <-chan Transcript {
	return d.out
}

// Close asks Deepgram to flush and closes the connection.
func (d *Deepgram) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if d.conn == nil {
			close(d.out)
			return
		}
		d.writeMu.Lock()
		_ = d.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = d.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		d.writeMu.Unlock()
		err = d.conn.Close()
	})
	return err
}

func (d *Deepgram) readLoop() {
	defer close(d.out)
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			select {
			case <-d.done:
			default:
				d.logger.Warn("read failed", "error", err)
			}
			return
		}

		transcripts, err := ParseMessage(data)
		if err != nil {
			d.logger.Debug("skipping message", "error", err)
			continue
		}
		for _, t := range transcripts {
			select {
			case d.out <- t:
			case <-d.done:
				return
			}
		}
	}
}

func (d *Deepgram) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.writeMu.Lock()
			err := d.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			d.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type resultMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// ParseMessage decodes a Deepgram message, which may be a single result
// object or an array of them. Non-result messages and empty transcripts
// yield nothing.
func ParseMessage(data []byte) ([]Transcript, error) {
	var msgs []resultMessage
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("stt: decode message: %w", err)
		}
	} else {
		var m resultMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, fmt.Errorf("stt: decode message: %w", err)
		}
		msgs = []resultMessage{m}
	}

	var out []Transcript
	for _, m := range msgs {
		if m.Type != "" && m.Type != "Results" {
			continue
		}
		if len(m.Channel.Alternatives) == 0 {
			continue
		}
		alt := m.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		out = append(out, Transcript{
			Text:        alt.Transcript,
			Confidence:  alt.Confidence,
			Final:       m.IsFinal,
			SpeechFinal: m.SpeechFinal,
			Start:       m.Start,
			Duration:    m.Duration,
		})
	}
	return out, nil
}

var _ Transcriber = (*Deepgram)(nil)
