package live

import (
	"errors"
	"fmt"

	"github.com/lingopipe/lingopipe/pkg/core/capture"
)

// ErrorKind categorizes session errors.
type ErrorKind string

const (
	// ErrDeviceUnavailable means an audio device could not be opened.
	ErrDeviceUnavailable ErrorKind = "device_unavailable"
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied ErrorKind = "permission_denied"
	// ErrConnectionFailed means the live stream could not be established
	// or broke mid-session.
	ErrConnectionFailed ErrorKind = "connection_failed"
	// ErrPersistence means a transcript write failed. Non-fatal: the
	// conversation continues without persistence.
	ErrPersistence ErrorKind = "persistence_failure"
)

// SessionError is a classified session failure.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error ends the session. Persistence failures
// are the only non-fatal kind.
func (e *SessionError) Fatal() bool {
	return e.Kind != ErrPersistence
}

// newDeviceError classifies a capture or output device failure.
func newDeviceError(message string, err error) *SessionError {
	kind := ErrDeviceUnavailable
	if errors.Is(err, capture.ErrPermissionDenied) {
		kind = ErrPermissionDenied
	}
	return &SessionError{Kind: kind, Message: message, Err: err}
}

func newConnectionError(message string, err error) *SessionError {
	return &SessionError{Kind: ErrConnectionFailed, Message: message, Err: err}
}

func newPersistenceError(message string, err error) *SessionError {
	return &SessionError{Kind: ErrPersistence, Message: message, Err: err}
}
