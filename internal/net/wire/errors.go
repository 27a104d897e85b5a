package wire

import (
	"errors"
	"fmt"
)

// Decode errors. A malformed datagram never aborts the receiver; callers
// drop the packet and keep the session alive for everyone else.
var (
	// ErrTooShort reports a frame shorter than the 7-byte header.
	ErrTooShort = errors.New("wire: frame too short for header")

	// ErrInvalidMagic reports a frame that is not FLHS traffic at all.
	ErrInvalidMagic = errors.New("wire: invalid magic bytes")
)

// VersionMismatchError rejects an incompatible peer before any payload
// parsing happens.
type VersionMismatchError struct {
	Expected uint16
	Got      uint16
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("wire: protocol version mismatch: expected %d, got %d", e.Expected, e.Got)
}

// PayloadError reports a malformed payload, naming the first field that
// could not be read.
type PayloadError struct {
	Tag   Type
	Field string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("wire: malformed %s payload: bad field %q", e.Tag, e.Field)
}

// IsDecodeError reports whether err is any of the codec's decode errors.
func IsDecodeError(err error) bool {
	var vm *VersionMismatchError
	var pe *PayloadError
	return errors.Is(err, ErrTooShort) ||
		errors.Is(err, ErrInvalidMagic) ||
		errors.As(err, &vm) ||
		errors.As(err, &pe)
}
