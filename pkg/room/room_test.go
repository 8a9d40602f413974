package room

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want ParticipantKind
		ok   bool
	}{
		{"", KindStandard, true},
		{"standard", KindStandard, true},
		{"sip", KindSIP, true},
		{"pstn", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKind(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParticipantClosed(t *testing.T) {
	p := newParticipant("s1", "alice", KindStandard, "r", 0)
	p.close()
	if err := p.PublishAudio([]byte{1}); err != ErrClosed {
		t.Errorf("PublishAudio err = %v, want ErrClosed", err)
	}
	if err := p.SendEvent(Event{Type: EventChat}); err != ErrClosed {
		t.Errorf("SendEvent err = %v, want ErrClosed", err)
	}
	p.close()
}

func TestDeliverAudioDropsWhenFull(t *testing.T) {
	p := newParticipant("s1", "alice", KindStandard, "r", 0)
	for i := 0; i < cap(p.audio)+5; i++ {
		p.deliverAudio([]byte{0, 0})
	}
	info := p.Info()
	if info.AudioFrames != uint64(cap(p.audio)+5) {
		t.Errorf("AudioFrames = %d", info.AudioFrames)
	}
	if info.DroppedFrames != 5 {
		t.Errorf("DroppedFrames = %d, want 5", info.DroppedFrames)
	}
}

func TestJobShutdownOrder(t *testing.T) {
	job := &JobContext{}
	var order []int
	job.AddShutdownCallback(func(context.Context) { order = append(order, 1) })
	job.AddShutdownCallback(func(context.Context) { order = append(order, 2) })
	job.runShutdown(context.Background())
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v", order)
	}
}

func startServer(t *testing.T, entry EntrypointFunc) (*Server, string) {
	t.Helper()
	s := NewServer(entry, WithShutdownTimeout(time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, "ws://" + ln.Addr().String()
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return ev
	}
}

func TestParticipantSession(t *testing.T) {
	type joined struct {
		room     string
		identity string
		kind     ParticipantKind
		rate     int
	}
	joinedCh := make(chan joined, 1)
	shutdownCh := make(chan struct{})

	entry := func(ctx context.Context, job *JobContext) error {
		p := job.Participant
		joinedCh <- joined{job.Room, p.Identity(), p.Kind(), p.SampleRate()}
		job.AddShutdownCallback(func(context.Context) { close(shutdownCh) })

		for {
			select {
			case <-ctx.Done():
				return nil
			case pcm := <-p.Audio():
				_ = p.PublishAudio(pcm)
			case msg := <-p.Chat():
				_ = p.SendEvent(Event{Type: EventAgentText, Text: "echo: " + msg})
			}
		}
	}
	_, base := startServer(t, entry)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/rooms/lobby/ws?identity=alice&kind=sip", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ev := readEvent(t, ws)
	if ev.Type != EventSession || ev.SessionID == "" {
		t.Fatalf("first event = %+v", ev)
	}

	j := <-joinedCh
	if j.room != "lobby" || j.identity != "alice" || j.kind != KindSIP || j.rate != 8000 {
		t.Errorf("joined = %+v", j)
	}

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if mt != websocket.BinaryMessage || len(data) != 4 {
		t.Errorf("echo = type %d len %d", mt, len(data))
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","message":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	ev = readEvent(t, ws)
	if ev.Type != EventAgentText || ev.Text != "echo: hello" {
		t.Errorf("reply = %+v", ev)
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	select {
	case <-shutdownCh:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown callback did not run")
	}
}

func TestChatBroadcast(t *testing.T) {
	s, base := startServer(t, nil)

	alice, _, err := websocket.DefaultDialer.Dial(base+"/rooms/r1/ws?identity=alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()
	readEvent(t, alice)

	bob, _, err := websocket.DefaultDialer.Dial(base+"/rooms/r1/ws?identity=bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bob.Close()
	readEvent(t, bob)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Participants("r1")) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","message":"hi bob"}`)); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, bob)
	if ev.Type != EventChat || ev.Message != "hi bob" || ev.From != "alice" {
		t.Errorf("bob got %+v", ev)
	}

	st := s.Stats()
	if st.Rooms != 1 || st.Participants != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRejectsInvalidKind(t *testing.T) {
	_, base := startServer(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(base+"/rooms/r/ws?kind=fax", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRejectsInvalidRate(t *testing.T) {
	_, base := startServer(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(base+"/rooms/r/ws?rate=96000", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSampleRate(t *testing.T) {
	if DefaultSampleRate(KindSIP) != 8000 || DefaultSampleRate(KindStandard) != 16000 {
		t.Error("unexpected default sample rates")
	}
	if p := newParticipant("s", "a", KindStandard, "r", 24000); p.SampleRate() != 24000 {
		t.Errorf("SampleRate() = %d", p.SampleRate())
	}
}

func TestRoomsAPI(t *testing.T) {
	s := NewServer(nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/rooms", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/rooms/missing", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing room status = %d", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/rooms/r/ws", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("plain GET on ws route status = %d", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

// chanTransport is an in-memory Transport.
type chanTransport struct {
	in     chan Inbound
	audio  chan []byte
	events chan Event
	closed chan struct{}
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		in:     make(chan Inbound, 8),
		audio:  make(chan []byte, 8),
		events: make(chan Event, 8),
		closed: make(chan struct{}),
	}
}

func (c *chanTransport) Receive() (Inbound, error) {
	in, ok := <-c.in
	if !ok {
		return Inbound{}, io.EOF
	}
	return in, nil
}

func (c *chanTransport) SendAudio(pcm []byte) error { c.audio <- pcm; return nil }
func (c *chanTransport) SendEvent(ev Event) error  { c.events <- ev; return nil }
func (c *chanTransport) Close() error              { close(c.closed); return nil }

func TestServeCustomTransport(t *testing.T) {
	gotRate := make(chan int, 1)
	entry := func(ctx context.Context, job *JobContext) error {
		p := job.Participant
		gotRate <- p.SampleRate()
		for {
			select {
			case <-ctx.Done():
				return nil
			case pcm := <-p.Audio():
				_ = p.PublishAudio(append(pcm, pcm...))
			}
		}
	}
	s := NewServer(entry, WithShutdownTimeout(time.Second))
	tr := newChanTransport()

	served := make(chan struct{})
	go func() {
		defer close(served)
		s.Serve(Spec{Room: "call-1", Identity: "+15550100", Kind: KindSIP}, tr)
	}()

	select {
	case ev := <-tr.events:
		if ev.Type != EventSession {
			t.Errorf("first event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
	}
	if rate := <-gotRate; rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}

	tr.in <- Inbound{Audio: []byte{1, 2}}
	select {
	case pcm := <-tr.audio:
		if len(pcm) != 4 {
			t.Errorf("len = %d, want 4", len(pcm))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audio")
	}

	ps := s.Participants("call-1")
	if len(ps) != 1 || ps[0].Identity() != "+15550100" {
		t.Fatalf("participants = %v", ps)
	}

	close(tr.in)
	select {
	case <-served:
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
	select {
	case <-tr.closed:
	default:
		t.Error("transport not closed")
	}
	if n := len(s.Participants("call-1")); n != 0 {
		t.Errorf("participants after leave = %d", n)
	}
}
