package speechlen

import "errors"

var (
	// ErrInvalidRate is returned when words-per-second is not a positive finite number.
	ErrInvalidRate = errors.New("speechlen: words per second must be positive")

	// ErrInvalidMaxDuration is returned when the max duration is not a positive finite number.
	ErrInvalidMaxDuration = errors.New("speechlen: max duration must be positive")
)
