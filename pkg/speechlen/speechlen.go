package speechlen

import "strings"

// Words splits text on runs of whitespace. Empty text yields no words.
func Words(text string) []string {
	return strings.Fields(text)
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Estimate returns the spoken duration of text in seconds.
func Estimate(text string, wordsPerSecond float64) (float64, error) {
	if err := checkRate(wordsPerSecond); err != nil {
		return 0, err
	}
	return float64(CountWords(text)) / wordsPerSecond, nil
}

// Trim returns the centered window of at most floor(maxDuration*wordsPerSecond)
// words. Text that already fits is returned unchanged, byte for byte.
func Trim(text string, maxDuration, wordsPerSecond float64) (string, error) {
	if err := checkRate(wordsPerSecond); err != nil {
		return "", err
	}
	if err := checkMaxDuration(maxDuration); err != nil {
		return "", err
	}
	return trimWords(text, maxWords(maxDuration, wordsPerSecond)), nil
}

func trimWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	start := (len(words) - maxWords) / 2
	return strings.Join(words[start:start+maxWords], " ")
}

// Estimator applies a validated Config. The zero value is not usable; build
// one with New.
type Estimator struct {
	cfg Config
}

// New returns an Estimator for cfg, or the validation error.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate returns the spoken duration of text in seconds.
func (e *Estimator) Estimate(text string) float64 {
	return float64(CountWords(text)) / e.cfg.WordsPerSecond
}

// Exceeds reports whether a duration is over the configured maximum.
func (e *Estimator) Exceeds(seconds float64) bool {
	return seconds > e.cfg.MaxDuration
}

// Trim shortens text to the configured maximum duration.
func (e *Estimator) Trim(text string) string {
	return trimWords(text, e.cfg.MaxWords())
}
