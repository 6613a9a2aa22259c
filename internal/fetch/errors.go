package fetch

import (
	"errors"
	"fmt"
)

// ErrRobotsDisallowed marks URLs excluded by robots.txt
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// ErrUnknownSource is returned for jobs naming an unconfigured source
var ErrUnknownSource = errors.New("unknown source")

// ErrorKind classifies fetch failures for counting and retry decisions
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindStatus   ErrorKind = "status"
	KindRobots   ErrorKind = "robots"
	KindDenied   ErrorKind = "denied" // RateGate breaker open
	KindCanceled ErrorKind = "canceled"
)

// Error is the FetchError returned by Fetch
type Error struct {
	Kind     ErrorKind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s %d after %d attempt(s): %v", e.URL, e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError is the cause recorded for non-2xx responses
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// IsTerminalStatus reports statuses that are never retried
func IsTerminalStatus(code int) bool {
	switch {
	case code == 429:
		return false
	case code >= 400 && code < 500:
		return true
	default:
		return false
	}
}

// IsBackoffStatus reports statuses retried with exponential backoff
func IsBackoffStatus(code int) bool {
	return code == 429 || code >= 500
}
