package textproc

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable marks failures talking to a remote processor:
// transport errors, timeouts, non-200 responses and undecodable bodies.
var ErrUpstreamUnavailable = errors.New("textproc: upstream unavailable")

// StatusError is returned when the remote processor answers with a
// non-200 status. It matches ErrUpstreamUnavailable under errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("textproc: validation server returned %d: %s", e.StatusCode, e.Body)
}

// Is reports whether target is ErrUpstreamUnavailable.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
