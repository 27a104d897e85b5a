package rollback

import (
	"errors"
	"fmt"
)

// The error taxonomy is split by side. Save errors are the producer's
// fault (the state could not be captured); load errors are the
// consumer's (a retained snapshot could not be restored). Keeping them
// distinct preserves which side broke when diagnosing a desync.
var (
	// ErrSourceFailed means the state source refused to serialize or
	// restore.
	ErrSourceFailed = errors.New("state source failed")

	// ErrFrameNotRetained means no snapshot is held for the requested
	// frame.
	ErrFrameNotRetained = errors.New("frame not retained")

	// ErrChecksumMismatch means a snapshot's bytes no longer hash to
	// its recorded checksum.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

	// ErrMalformedState means a snapshot component has the wrong shape
	// for the state source.
	ErrMalformedState = errors.New("malformed snapshot state")
)

// StateTooLargeError reports a capture that exceeds the configured
// maximum.
type StateTooLargeError struct {
	Size int
	Max  int
}

func (e *StateTooLargeError) Error() string {
	return fmt.Sprintf("state too large: %d bytes (max %d)", e.Size, e.Max)
}

// SaveStateError wraps a producer-side failure with the frame it
// happened at.
type SaveStateError struct {
	Frame int64
	Err   error
}

func (e *SaveStateError) Error() string {
	return fmt.Sprintf("save state at frame %d: %v", e.Frame, e.Err)
}

func (e *SaveStateError) Unwrap() error { return e.Err }

// LoadStateError wraps a consumer-side failure with the frame it
// happened at.
type LoadStateError struct {
	Frame int64
	Err   error
}

func (e *LoadStateError) Error() string {
	return fmt.Sprintf("load state at frame %d: %v", e.Frame, e.Err)
}

func (e *LoadStateError) Unwrap() error { return e.Err }
