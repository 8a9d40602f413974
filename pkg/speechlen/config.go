package speechlen

import "math"

// Default values shared by estimation and trimming.
const (
	DefaultWordsPerSecond = 2.0
	DefaultMaxDuration    = 60.0 // seconds
)

// Config holds the estimation rate and trimming threshold.
// Both values must be positive; use Validate before handing a Config to
// long-lived components.
type Config struct {
	// WordsPerSecond converts a word count into spoken seconds.
	WordsPerSecond float64

	// MaxDuration is the upper bound, in seconds, before text is trimmed.
	MaxDuration float64
}

// DefaultConfig returns the 2 words/s, 60 s configuration.
func DefaultConfig() Config {
	return Config{
		WordsPerSecond: DefaultWordsPerSecond,
		MaxDuration:    DefaultMaxDuration,
	}
}

// Validate rejects non-positive or non-finite values.
func (c Config) Validate() error {
	if err := checkRate(c.WordsPerSecond); err != nil {
		return err
	}
	return checkMaxDuration(c.MaxDuration)
}

// MaxWords is the largest word count whose estimate fits in MaxDuration.
func (c Config) MaxWords() int {
	return maxWords(c.MaxDuration, c.WordsPerSecond)
}

// maxWords is floor(d*r), saturating at math.MaxInt for bounds no text
// can reach.
func maxWords(d, r float64) int {
	n := math.Floor(d * r)
	if n >= math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

func checkRate(wps float64) error {
	if !(wps > 0) || math.IsInf(wps, 0) {
		return ErrInvalidRate
	}
	return nil
}

func checkMaxDuration(d float64) error {
	if !(d > 0) || math.IsInf(d, 0) {
		return ErrInvalidMaxDuration
	}
	return nil
}
