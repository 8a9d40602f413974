package textproc

import (
	"context"
	"strings"
)

// markup holds characters LLMs emit for formatting that a voice would read
// aloud or stumble over.
const markup = "*#`"

// Speakable strips markdown markers from text. Text without markers is
// returned unchanged.
type Speakable struct{}

// Process removes markers and collapses the whitespace they leave behind.
func (Speakable) Process(_ context.Context, text string) (string, error) {
	if !strings.ContainsAny(text, markup) {
		return text, nil
	}
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(markup, r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(stripped), " "), nil
}

var _ Processor = Speakable{}
