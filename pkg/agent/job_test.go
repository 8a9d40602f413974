package agent

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-speechgate/pkg/llm"
	"github.com/teslashibe/go-speechgate/pkg/room"
	"github.com/teslashibe/go-speechgate/pkg/stt"
	"github.com/teslashibe/go-speechgate/pkg/tts"
	"github.com/teslashibe/go-speechgate/pkg/vad"
)

func TestWorkerEntrypoint(t *testing.T) {
	det, err := vad.Load(vad.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	transcriber := stt.NewMock()
	models := make(chan string, 1)
	w := &Worker{
		LLM: llm.NewMock(),
		TTS: tts.NewMock(),
		NewSTT: func(model string, _ int) (stt.Transcriber, error) {
			models <- model
			return transcriber, nil
		},
		VAD:     det,
		Options: []Option{WithPacing(false)},
	}

	srv := room.NewServer(w.Entrypoint(), room.WithShutdownTimeout(time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.App().Listener(ln) }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/rooms/support/ws?identity=caller-1&kind=sip", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	select {
	case m := <-models:
		if m != stt.ModelPhoneCall {
			t.Errorf("model = %q", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("entrypoint did not run")
	}

	var (
		greeting   string
		audioBytes int
	)
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	// SIP callers default to 8kHz, so 24kHz synthesis arrives at a third
	// of its size.
	want := len(DefaultGreeting) * 160
	for greeting == "" || audioBytes < want {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (greeting=%q audio=%d)", err, greeting, audioBytes)
		}
		if mt == websocket.BinaryMessage {
			audioBytes += len(data)
			continue
		}
		var ev room.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type == room.EventAgentText {
			greeting = ev.Text
		}
	}
	if greeting != DefaultGreeting {
		t.Errorf("greeting = %q", greeting)
	}
	if audioBytes != want {
		t.Errorf("audio bytes = %d", audioBytes)
	}
}
