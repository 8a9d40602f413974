// Package agent runs a voice assistant for one room participant.
//
// Participant audio flows through voice activity detection into speech
// recognition. Final transcripts become user turns; the LLM reply is
// spoken through the TTS provider, which callers usually wrap with
// tts.Gated so overlong replies are trimmed before synthesis. Chat messages
// are answered out of band on a copy of the conversation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-speechgate/pkg/llm"
	"github.com/teslashibe/go-speechgate/pkg/pcm"
	"github.com/teslashibe/go-speechgate/pkg/room"
	"github.com/teslashibe/go-speechgate/pkg/stt"
	"github.com/teslashibe/go-speechgate/pkg/tts"
	"github.com/teslashibe/go-speechgate/pkg/vad"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("agent: already started")
	ErrNotStarted     = errors.New("agent: not started")
	ErrInterrupted    = errors.New("agent: speech interrupted")
)

// Participant is the room side of a session.
type Participant interface {
	Identity() string
	Kind() room.ParticipantKind
	SampleRate() int
	Audio() <-chan []byte
	Chat() <-chan string
	PublishAudio(pcm []byte) error
	SendEvent(ev room.Event) error
}

// TranscriberFactory builds a transcriber for a recognition model and an
// input sample rate.
type TranscriberFactory func(model string, sampleRate int) (stt.Transcriber, error)

type speech struct {
	cancel      context.CancelFunc
	allow       bool
	interrupted atomic.Bool
}

// Agent is a voice assistant bound to one participant.
type Agent struct {
	config Config
	logger *slog.Logger

	llm    llm.Provider
	tts    tts.Provider
	newSTT TranscriberFactory
	vad    vad.Detector

	chatCtx *llm.ChatContext
	usage   *UsageCollector

	mu          sync.Mutex
	participant Participant
	stt         stt.Transcriber
	current     *speech
	cancel      context.CancelFunc

	speakMu sync.Mutex
	wg      sync.WaitGroup
}

// New builds an agent. det is cloned so the caller's detector can be
// shared as a template across sessions.
func New(l llm.Provider, t tts.Provider, newSTT TranscriberFactory, det vad.Detector, opts ...Option) *Agent {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var d vad.Detector
	if det != nil {
		d = det.Clone()
	}
	return &Agent{
		config:  cfg,
		logger:  cfg.Logger.With("component", "agent"),
		llm:     l,
		tts:     t,
		newSTT:  newSTT,
		vad:     d,
		chatCtx: llm.NewChatContext(cfg.SystemPrompt),
		usage:   NewUsageCollector(),
	}
}

// ChatContext returns the live conversation.
func (a *Agent) ChatContext() *llm.ChatContext { return a.chatCtx }

// Usage returns the usage collector.
func (a *Agent) Usage() *UsageCollector { return a.usage }

// Start connects speech recognition for p, starts the audio, transcript
// and chat loops, and speaks the greeting.
func (a *Agent) Start(ctx context.Context, p Participant) error {
	a.mu.Lock()
	if a.participant != nil {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.participant = p
	a.mu.Unlock()

	rate := p.SampleRate()
	if rate <= 0 {
		rate = a.config.InputSampleRate
	}
	model := stt.ModelForParticipant(string(p.Kind()))
	a.logger = a.logger.With("identity", p.Identity(), "stt_model", model, "sample_rate", rate)

	tr, err := a.newSTT(model, rate)
	if err != nil {
		return fmt.Errorf("agent: create transcriber: %w", err)
	}
	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("agent: connect transcriber: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.stt = tr
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(3)
	go a.audioLoop(ctx, p, tr, rate)
	go a.transcriptLoop(ctx, p, tr)
	go a.chatLoop(ctx, p)

	a.logger.Info("agent started")

	if a.config.Greeting != "" {
		if err := a.Say(ctx, a.config.Greeting, true); err != nil && !errors.Is(err, ErrInterrupted) {
			a.logger.Warn("greeting failed", "error", err)
		}
	}
	return nil
}

// Close stops the loops and the transcriber.
func (a *Agent) Close() error {
	a.mu.Lock()
	cancel, tr := a.cancel, a.stt
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	var err error
	if tr != nil {
		err = tr.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Agent) audioLoop(ctx context.Context, p Participant, tr stt.Transcriber, rate int) {
	defer a.wg.Done()
	bytesPerSec := rate * 2

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.Audio():
			if a.vad != nil && a.vad.Process(frame) == vad.EventSpeechStart {
				a.interrupt()
			}
			if err := tr.SendAudio(frame); err != nil {
				a.logger.Debug("send audio failed", "error", err)
				continue
			}
			if bytesPerSec > 0 {
				a.usage.AddSTTAudio(time.Duration(len(frame)) * time.Second / time.Duration(bytesPerSec))
			}
		}
	}
}

func (a *Agent) transcriptLoop(ctx context.Context, p Participant, tr stt.Transcriber) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-tr.Transcripts():
			if !ok {
				return
			}
			_ = p.SendEvent(room.Event{Type: room.EventTranscript, Text: t.Text, Final: t.Final})
			if !t.Final || strings.TrimSpace(t.Text) == "" {
				continue
			}
			if err := a.handleTurn(ctx, t.Text); err != nil && ctx.Err() == nil {
				a.logger.Error("turn failed", "error", err)
			}
		}
	}
}

func (a *Agent) chatLoop(ctx context.Context, p Participant) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.Chat():
			if strings.TrimSpace(msg) == "" {
				continue
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				if err := a.AnswerFromText(ctx, msg); err != nil && ctx.Err() == nil {
					a.logger.Error("chat answer failed", "error", err)
				}
			}()
		}
	}
}

// handleTurn answers a final transcript and records it in the conversation.
func (a *Agent) handleTurn(ctx context.Context, text string) error {
	m := TurnMetrics{Source: SourceVoice, Start: time.Now()}

	a.chatCtx.Append(llm.RoleUser, text)
	reply, err := a.generate(ctx, a.chatCtx, &m)
	if err != nil {
		return err
	}
	a.chatCtx.Append(llm.RoleAssistant, reply)

	return a.speakTurn(ctx, reply, true, m)
}

// AnswerFromText answers a chat message on a copy of the conversation, so
// the exchange does not enter the voice history, and speaks the reply with
// interruptions allowed.
func (a *Agent) AnswerFromText(ctx context.Context, text string) error {
	if a.participantOrNil() == nil {
		return ErrNotStarted
	}
	m := TurnMetrics{Source: SourceChat, Start: time.Now()}

	cc := a.chatCtx.Copy().Append(llm.RoleUser, text)
	reply, err := a.generate(ctx, cc, &m)
	if err != nil {
		return err
	}
	a.logger.Info("chat reply generated", "preview", preview(reply, 50))

	return a.speakTurn(ctx, reply, true, m)
}

// Say synthesizes text and publishes it. With allowInterruptions, user
// speech detected by the VAD cancels playback and Say returns
// ErrInterrupted.
func (a *Agent) Say(ctx context.Context, text string, allowInterruptions bool) error {
	return a.speakTurn(ctx, text, allowInterruptions, TurnMetrics{Source: SourceSay, Start: time.Now()})
}

func (a *Agent) speakTurn(ctx context.Context, text string, allow bool, m TurnMetrics) error {
	err := a.speak(ctx, text, allow, &m)
	m.Total = time.Since(m.Start)
	a.usage.Collect(m)
	return err
}

// generate streams a reply for cc, recording LLM timings and usage in m.
func (a *Agent) generate(ctx context.Context, cc *llm.ChatContext, m *TurnMetrics) (string, error) {
	start := time.Now()
	s, err := a.llm.Chat(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("agent: llm: %w", err)
	}
	ts := &timedStream{Stream: s}
	reply, usage, err := llm.Collect(ts)
	if err != nil {
		return "", fmt.Errorf("agent: llm: %w", err)
	}
	m.LLMDuration = time.Since(start)
	if !ts.first.IsZero() {
		m.LLMFirstToken = ts.first.Sub(start)
	}
	m.PromptTokens = usage.PromptTokens
	m.CompletionTokens = usage.CompletionTokens
	return strings.TrimSpace(reply), nil
}

// speak runs one utterance. Utterances never overlap.
func (a *Agent) speak(ctx context.Context, text string, allow bool, m *TurnMetrics) error {
	p := a.participantOrNil()
	if p == nil {
		return ErrNotStarted
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	a.speakMu.Lock()
	defer a.speakMu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sp := &speech{cancel: cancel, allow: allow}
	a.mu.Lock()
	a.current = sp
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.current == sp {
			a.current = nil
		}
		a.mu.Unlock()
	}()

	start := time.Now()
	res, err := a.tts.Synthesize(sctx, text)
	if err != nil {
		if sp.interrupted.Load() {
			m.Interrupted = true
			return ErrInterrupted
		}
		return fmt.Errorf("agent: tts: %w", err)
	}
	m.TTSLatency = time.Since(start)
	m.TTSCharacters = len([]rune(res.Text))
	m.AudioDuration = res.Duration
	m.Trimmed = res.Text != text
	if m.Trimmed {
		a.logger.Info("reply trimmed before synthesis", "original_words", len(strings.Fields(text)), "spoken_words", len(strings.Fields(res.Text)))
	}

	_ = p.SendEvent(room.Event{Type: room.EventAgentText, Text: res.Text})

	err = a.publish(sctx, p, res)
	if sp.interrupted.Load() {
		m.Interrupted = true
		_ = p.SendEvent(room.Event{Type: room.EventAgentInterrupted})
		a.logger.Info("speech interrupted")
		return ErrInterrupted
	}
	return err
}

// publish sends PCM audio in frames at the participant's rate, paced in
// real time when configured. Compressed audio is sent as one message.
func (a *Agent) publish(ctx context.Context, p Participant, res *tts.AudioResult) error {
	if !res.Format.IsPCM() {
		return p.PublishAudio(res.Audio)
	}

	audio, rate := res.Audio, res.Format.SampleRate
	if out := p.SampleRate(); out > 0 && out != rate {
		audio, rate = pcm.ResampleBytes(audio, rate, out), out
	}

	frameBytes := int(int64(rate*2) * int64(a.config.FrameDuration) / int64(time.Second))
	frameBytes -= frameBytes % 2
	if frameBytes <= 0 {
		frameBytes = len(audio)
	}

	var ticker *time.Ticker
	if a.config.Pace {
		ticker = time.NewTicker(a.config.FrameDuration)
		defer ticker.Stop()
	}

	for off := 0; off < len(audio); off += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+frameBytes, len(audio))
		if err := p.PublishAudio(audio[off:end]); err != nil {
			return fmt.Errorf("agent: publish audio: %w", err)
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// interrupt cancels the current utterance if it allows interruptions.
func (a *Agent) interrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil && a.current.allow {
		a.current.interrupted.Store(true)
		a.current.cancel()
	}
}

func (a *Agent) participantOrNil() Participant {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.participant
}

type timedStream struct {
	llm.Stream
	first time.Time
}

func (s *timedStream) Recv() (llm.Chunk, error) {
	c, err := s.Stream.Recv()
	if err == nil && c.Delta != "" && s.first.IsZero() {
		s.first = time.Now()
	}
	return c, err
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
