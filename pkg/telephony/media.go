package telephony

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-speechgate/pkg/pcm"
	"github.com/teslashibe/go-speechgate/pkg/room"
)

const (
	writeWait = 10 * time.Second

	// readWait bounds silence on the stream; Twilio sends media continuously
	// while a call is up.
	readWait = 30 * time.Second

	encodingULaw = "audio/x-mulaw"

	paramRoom = "room"
	paramFrom = "from"
)

// mediaEvent is one Twilio media stream message in either direction.
type mediaEvent struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *streamStart  `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type streamStart struct {
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

type mediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// mediaTransport adapts a Twilio media stream to room.Transport. Audio is
// base64 mu-law at 8kHz on the wire and PCM16LE inside the room.
type mediaTransport struct {
	c         *websocket.Conn
	log       *slog.Logger
	streamSID string
}

var _ room.Transport = (*mediaTransport)(nil)

func newMediaTransport(c *websocket.Conn, log *slog.Logger) *mediaTransport {
	return &mediaTransport{c: c, log: log}
}

func (t *mediaTransport) read() (mediaEvent, error) {
	_ = t.c.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := t.c.ReadMessage()
	if err != nil {
		return mediaEvent{}, err
	}
	var ev mediaEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.log.Debug("ignoring malformed media event", "error", err)
		return mediaEvent{}, nil
	}
	return ev, nil
}

// awaitStart consumes messages up to and including the start event.
func (t *mediaTransport) awaitStart() (*streamStart, error) {
	for {
		ev, err := t.read()
		if err != nil {
			return nil, err
		}
		switch ev.Event {
		case "start":
			if ev.Start == nil {
				continue
			}
			t.streamSID = ev.Start.StreamSID
			if t.streamSID == "" {
				t.streamSID = ev.StreamSID
			}
			return ev.Start, nil
		case "stop":
			return nil, io.EOF
		}
	}
}

func (t *mediaTransport) Receive() (room.Inbound, error) {
	for {
		ev, err := t.read()
		if err != nil {
			return room.Inbound{}, err
		}
		switch ev.Event {
		case "media":
			if ev.Media == nil || ev.Media.Track == "outbound" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				t.log.Debug("bad media payload", "error", err)
				continue
			}
			return room.Inbound{Audio: pcm.ULawDecode(raw)}, nil
		case "stop":
			return room.Inbound{}, io.EOF
		}
	}
}

func (t *mediaTransport) SendAudio(pcm16 []byte) error {
	return t.write(mediaEvent{
		Event:     "media",
		StreamSID: t.streamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(pcm.ULawEncode(pcm16))},
	})
}

// SendEvent turns an interruption into a clear, which flushes audio Twilio
// has buffered for playback. Text events have no place on a phone call.
func (t *mediaTransport) SendEvent(ev room.Event) error {
	if ev.Type != room.EventAgentInterrupted {
		return nil
	}
	return t.write(mediaEvent{Event: "clear", StreamSID: t.streamSID})
}

func (t *mediaTransport) write(ev mediaEvent) error {
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteJSON(ev)
}

func (t *mediaTransport) Close() error {
	_ = t.c.SetWriteDeadline(time.Now().Add(writeWait))
	return t.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
