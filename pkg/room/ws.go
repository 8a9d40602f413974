package room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"
)

// wsTransport is the native protocol: binary frames carry audio, text
// frames carry JSON events.
type wsTransport struct {
	c   *websocket.Conn
	log *slog.Logger
}

var (
	_ Transport = (*wsTransport)(nil)
	_ Pinger    = (*wsTransport)(nil)
)

func newWSTransport(c *websocket.Conn, log *slog.Logger) *wsTransport {
	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsTransport{c: c, log: log}
}

func (t *wsTransport) Receive() (Inbound, error) {
	for {
		mt, data, err := t.c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("read failed", "error", err)
			}
			return Inbound{}, err
		}
		_ = t.c.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			return Inbound{Audio: data}, nil
		case websocket.TextMessage:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.log.Debug("ignoring malformed message", "error", err)
				continue
			}
			if ev.Type != EventChat || ev.Message == "" {
				t.log.Debug("ignoring message", "type", ev.Type)
				continue
			}
			return Inbound{Chat: ev.Message}, nil
		}
	}
}

func (t *wsTransport) SendAudio(pcm []byte) error {
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteMessage(websocket.BinaryMessage, pcm)
}

func (t *wsTransport) SendEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteMessage(websocket.PingMessage, nil)
}

// Close sends a close frame. The connection itself is released when the
// fiber handler returns.
func (t *wsTransport) Close() error {
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
