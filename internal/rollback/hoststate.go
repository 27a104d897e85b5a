package rollback

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HostStateSize is the exact encoded size of HostRollbackState.
const HostStateSize = 20

// HostRollbackState captures the host-side simulation variables that
// live outside the game's own memory but still feed determinism: the
// RNG stream position, the tick counter, and elapsed time.
//
// Elapsed time is held as the raw bit pattern of a 32-bit float. State
// bytes feed checksums that peers compare across platforms, so native
// float serialization is never used anywhere in this record.
type HostRollbackState struct {
	RNGState        uint64
	TickCount       uint64
	ElapsedTimeBits uint32
}

// NewHostRollbackState captures the three host-side variables.
func NewHostRollbackState(rngState, tickCount uint64, elapsedTime float32) HostRollbackState {
	return HostRollbackState{
		RNGState:        rngState,
		TickCount:       tickCount,
		ElapsedTimeBits: math.Float32bits(elapsedTime),
	}
}

// ElapsedTime returns the elapsed time as a float.
func (s HostRollbackState) ElapsedTime() float32 {
	return math.Float32frombits(s.ElapsedTimeBits)
}

// SetElapsedTime stores a float elapsed time as raw bits.
func (s *HostRollbackState) SetElapsedTime(t float32) {
	s.ElapsedTimeBits = math.Float32bits(t)
}

// appendTo appends the fixed 20-byte little-endian encoding.
func (s HostRollbackState) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, s.RNGState)
	b = binary.LittleEndian.AppendUint64(b, s.TickCount)
	b = binary.LittleEndian.AppendUint32(b, s.ElapsedTimeBits)
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s HostRollbackState) MarshalBinary() ([]byte, error) {
	return s.appendTo(make([]byte, 0, HostStateSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The input must
// be exactly HostStateSize bytes.
func (s *HostRollbackState) UnmarshalBinary(data []byte) error {
	if len(data) != HostStateSize {
		return fmt.Errorf("host state: got %d bytes, want %d", len(data), HostStateSize)
	}
	s.RNGState = binary.LittleEndian.Uint64(data[0:8])
	s.TickCount = binary.LittleEndian.Uint64(data[8:16])
	s.ElapsedTimeBits = binary.LittleEndian.Uint32(data[16:20])
	return nil
}
