// Package room hosts voice rooms.
//
// Each connection is one participant in a named room, carried by a
// Transport. The built-in websocket transport treats binary frames as
// PCM16LE audio and text frames as JSON chat messages. An EntrypointFunc
// runs once per participant, typically starting an agent.
package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-speechgate/pkg/pcm"
)

// ErrClosed is returned when writing to a participant that has left.
var ErrClosed = errors.New("room: participant disconnected")

// ParticipantKind distinguishes regular clients from telephony callers.
type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindSIP      ParticipantKind = "sip"
)

// ParseKind maps a query value to a kind. Empty means standard.
func ParseKind(s string) (ParticipantKind, bool) {
	switch ParticipantKind(s) {
	case "", KindStandard:
		return KindStandard, true
	case KindSIP:
		return KindSIP, true
	}
	return "", false
}

// DefaultSampleRate is the PCM16 mono rate assumed for a kind when the
// client does not name one: narrowband for telephony, 16kHz otherwise.
func DefaultSampleRate(kind ParticipantKind) int {
	if kind == KindSIP {
		return pcm.RateTelephony
	}
	return pcm.RateSpeech
}

// Event types sent to and received from participants.
const (
	EventSession          = "session"
	EventTranscript       = "transcript"
	EventAgentText        = "agent_text"
	EventAgentInterrupted = "agent_interrupted"
	EventChat             = "chat"
)

// Event is a JSON message on the websocket.
type Event struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Text      string `json:"text,omitempty"`
	Final     bool   `json:"final,omitempty"`
	From      string `json:"from,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// frame is one queued outbound message: audio, or an event when event is set.
type frame struct {
	audio []byte
	event *Event
}

// Participant is one connected client.
type Participant struct {
	sessionID  string
	identity   string
	kind       ParticipantKind
	room       string
	sampleRate int
	joined     time.Time

	audio chan []byte
	chat  chan string
	send  chan frame

	done      chan struct{}
	closeOnce sync.Once

	audioFrames   atomic.Uint64
	droppedFrames atomic.Uint64
}

func newParticipant(sessionID, identity string, kind ParticipantKind, room string, sampleRate int) *Participant {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate(kind)
	}
	return &Participant{
		sessionID:  sessionID,
		identity:   identity,
		kind:       kind,
		room:       room,
		sampleRate: sampleRate,
		joined:     time.Now(),
		audio:      make(chan []byte, 128),
		chat:       make(chan string, 16),
		send:       make(chan frame, 256),
		done:       make(chan struct{}),
	}
}

// SessionID is the server-assigned id for this connection.
func (p *Participant) SessionID() string { return p.sessionID }

// Identity is the client-supplied name, or the session id when none was given.
func (p *Participant) Identity() string { return p.identity }

// Kind reports whether the participant is a regular client or a caller.
func (p *Participant) Kind() ParticipantKind { return p.kind }

// Room is the name of the room the participant joined.
func (p *Participant) Room() string { return p.room }

// SampleRate is the PCM16 mono rate of audio in both directions.
func (p *Participant) SampleRate() int { return p.sampleRate }

// Audio delivers inbound PCM16LE frames. Frames are dropped when the
// reader falls behind.
func (p *Participant) Audio() <-chan []byte { return p.audio }

// Chat delivers inbound chat message text.
func (p *Participant) Chat() <-chan string { return p.chat }

// Done is closed when the participant disconnects.
func (p *Participant) Done() <-chan struct{} { return p.done }

// PublishAudio queues PCM16LE audio at the participant's sample rate.
func (p *Participant) PublishAudio(pcm []byte) error {
	return p.enqueue(frame{audio: pcm})
}

// SendEvent queues an event for the participant.
func (p *Participant) SendEvent(ev Event) error {
	return p.enqueue(frame{event: &ev})
}

func (p *Participant) enqueue(f frame) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- f:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *Participant) deliverAudio(pcm []byte) {
	p.audioFrames.Add(1)
	select {
	case p.audio <- pcm:
	default:
		p.droppedFrames.Add(1)
	}
}

func (p *Participant) deliverChat(msg string) bool {
	select {
	case p.chat <- msg:
		return true
	default:
		return false
	}
}

func (p *Participant) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Info describes a participant for the rooms API.
type Info struct {
	SessionID     string          `json:"session_id"`
	Identity      string          `json:"identity"`
	Kind          ParticipantKind `json:"kind"`
	Room          string          `json:"room"`
	SampleRate    int             `json:"sample_rate"`
	Joined        time.Time       `json:"joined"`
	AudioFrames   uint64          `json:"audio_frames"`
	DroppedFrames uint64          `json:"dropped_frames"`
}

// Info returns a snapshot of the participant.
func (p *Participant) Info() Info {
	return Info{
		SessionID:     p.sessionID,
		Identity:      p.identity,
		Kind:          p.kind,
		Room:          p.room,
		SampleRate:    p.sampleRate,
		Joined:        p.joined,
		AudioFrames:   p.audioFrames.Load(),
		DroppedFrames: p.droppedFrames.Load(),
	}
}

// JobContext is handed to the entrypoint for one participant.
type JobContext struct {
	Room        string
	Participant *Participant

	mu       sync.Mutex
	shutdown []func(context.Context)
}

// AddShutdownCallback registers fn to run after the participant leaves.
// Callbacks run in registration order.
func (j *JobContext) AddShutdownCallback(fn func(context.Context)) {
	j.mu.Lock()
	j.shutdown = append(j.shutdown, fn)
	j.mu.Unlock()
}

func (j *JobContext) runShutdown(ctx context.Context) {
	j.mu.Lock()
	fns := append([]func(context.Context){}, j.shutdown...)
	j.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// EntrypointFunc starts work for a participant. ctx is cancelled when the
// participant disconnects or the server shuts down.
type EntrypointFunc func(ctx context.Context, job *JobContext) error
