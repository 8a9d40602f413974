package textproc

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/teslashibe/go-speechgate/pkg/speechlen"
)

// Gate applies a Processor with a timeout and a pass-through fallback.
type Gate struct {
	proc    Processor
	timeout time.Duration
	logger  *slog.Logger
	preview int
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTimeout bounds each Apply call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithPreview sets how many characters of the text are logged.
func WithPreview(n int) GateOption {
	return func(g *Gate) { g.preview = n }
}

// NewGate wraps proc. A nil proc behaves like Passthrough.
func NewGate(proc Processor, opts ...GateOption) *Gate {
	if proc == nil {
		proc = Passthrough{}
	}
	g := &Gate{
		proc:    proc,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		preview: 50,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "textproc.gate")
	return g
}

// Apply returns the processed text, or text itself if processing fails.
// It never returns an error.
func (g *Gate) Apply(ctx context.Context, text string) string {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	g.logger.Debug("validating text", "preview", g.truncate(text))

	out, err := g.proc.Process(ctx, text)
	if err != nil {
		g.logger.Error("text processing failed, using original text", "error", err)
		return text
	}

	if out == text {
		return out
	}
	in, kept := spokenWords(text), spokenWords(out)
	if kept < in {
		g.logger.Info("text was trimmed by validation",
			"original_words", in,
			"validated_words", kept,
		)
	} else {
		g.logger.Debug("text was rewritten",
			"original_len", len(text),
			"validated_len", len(out),
		)
	}
	return out
}

// spokenWords counts words with at least one letter or digit, so stray
// markup tokens do not count.
func spokenWords(text string) int {
	n := 0
	for _, w := range speechlen.Words(text) {
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

func (g *Gate) truncate(text string) string {
	r := []rune(text)
	if g.preview <= 0 || len(r) <= g.preview {
		return text
	}
	return string(r[:g.preview]) + "..."
}
