package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime package.
var (
	// ErrMissingAPIKey indicates no credential was available. Checked
	// eagerly, before any I/O.
	ErrMissingAPIKey = errors.New("realtime: API key is required")

	// ErrNotConnected indicates the session has no open connection.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrAlreadyOpen indicates Open was called on an open session.
	ErrAlreadyOpen = errors.New("realtime: session already open")

	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("realtime: session closed")
)

// ConnectionError is a transport-level failure. It is fatal to the session;
// the caller may start a new one.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: connection error: %s", e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// NewConnectionError creates a ConnectionError.
func NewConnectionError(reason string, cause error) *ConnectionError {
	return &ConnectionError{Reason: reason, Cause: cause}
}

// IsConnectionError reports whether err is transport-level and therefore
// fatal to the session.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// APIError is an error event reported by the remote side. It does not by
// itself terminate the session.
type APIError struct {
	Code    string
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: API error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: API error: %s", e.Message)
}

// PlaybackError is an output-device failure. The chunk is skipped and the
// session continues.
type PlaybackError struct {
	Cause error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("realtime: playback error: %v", e.Cause)
}

func (e *PlaybackError) Unwrap() error { return e.Cause }
