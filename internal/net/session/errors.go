package session

import (
	"errors"
	"fmt"
)

// ProtocolError is a session-layer error with a structured code.
// Protocol errors are expected and recoverable: a bad packet or an
// incompatible peer never aborts the host, the offending message is
// dropped or typed-rejected and the session continues.
type ProtocolError struct {
	Code    string // Error code (e.g., "FL-SESS-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support; two protocol errors match on code.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error with additional details.
func (e *ProtocolError) WithDetails(details string) *ProtocolError {
	return &ProtocolError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *ProtocolError) WithCause(cause error) *ProtocolError {
	return &ProtocolError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// NewProtocolError creates a new ProtocolError with the given code and message.
func NewProtocolError(code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// IsProtocolError checks whether err is a ProtocolError with the given
// code. An empty code matches any ProtocolError.
func IsProtocolError(err error, code string) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return code == "" || pe.Code == code
	}
	return false
}

var (
	// ErrInvalidConfig indicates the session configuration fails verification.
	ErrInvalidConfig = NewProtocolError("FL-SESS-4000", "invalid session configuration")

	// ErrJoinRejected indicates a join request failed compatibility validation.
	ErrJoinRejected = NewProtocolError("FL-SESS-4030", "join request rejected")

	// ErrNotAllReady indicates start was requested before every guest readied up.
	ErrNotAllReady = NewProtocolError("FL-SESS-4090", "not all players ready")

	// ErrNotEnoughPlayers indicates start was requested with fewer than two guests.
	ErrNotEnoughPlayers = NewProtocolError("FL-SESS-4091", "need at least 2 connected players")

	// ErrPortOverflow indicates a peer's handshake port cannot derive a
	// sync port (port+1 would overflow), which signals a misconfigured
	// ephemeral range.
	ErrPortOverflow = NewProtocolError("FL-SESS-4092", "handshake port 65535 leaves no room for sync port")

	// ErrJoinTimeout indicates the host never answered a guest's join request.
	ErrJoinTimeout = NewProtocolError("FL-SESS-4080", "join request timed out")

	// ErrPunchTimeout indicates hole punching did not complete in time.
	ErrPunchTimeout = NewProtocolError("FL-SESS-4081", "peer hole punching timed out")
)
