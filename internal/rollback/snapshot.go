package rollback

import (
	"github.com/cespare/xxhash/v2"
)

// EmptyFrame is the frame number of a snapshot holding no state.
const EmptyFrame int64 = -1

// Snapshot is a full capture of game state at one simulated frame.
//
// Data is the serialized game memory, ConsoleData the console's
// fixed-size rollback record, InputData the captured input registers,
// and HostState the host-side simulation variables. Checksum is a pure
// function of those four components; Frame is bookkeeping and never
// feeds the hash, so two captures of identical state at different
// frames carry identical checksums and a desync can be detected by
// comparing eight bytes per frame.
type Snapshot struct {
	Frame       int64
	Data        []byte
	ConsoleData []byte
	InputData   []byte
	HostState   HostRollbackState
	Checksum    uint64
}

// EmptySnapshot returns a snapshot holding no state, at frame -1.
func EmptySnapshot() Snapshot {
	return Snapshot{Frame: EmptyFrame}
}

// FromFullState builds a snapshot over all state components, computing
// the checksum. The byte slices are retained, not copied; ownership
// passes to the snapshot.
func FromFullState(data, consoleData, inputData []byte, hostState HostRollbackState, frame int64) Snapshot {
	return Snapshot{
		Frame:       frame,
		Data:        data,
		ConsoleData: consoleData,
		InputData:   inputData,
		HostState:   hostState,
		Checksum:    computeChecksum(data, consoleData, inputData, hostState),
	}
}

// FromData builds a snapshot over serialized game memory alone.
func FromData(data []byte, frame int64) Snapshot {
	return FromFullState(data, nil, nil, HostRollbackState{}, frame)
}

// IsEmpty reports whether the snapshot holds no game state.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Data) == 0
}

// Len returns the size of the serialized game memory in bytes.
func (s *Snapshot) Len() int {
	return len(s.Data)
}

// TotalLen returns the full snapshot footprint in bytes.
func (s *Snapshot) TotalLen() int {
	return len(s.Data) + len(s.ConsoleData) + len(s.InputData) + HostStateSize
}

// Verify recomputes the checksum over the current bytes.
func (s *Snapshot) Verify() bool {
	return computeChecksum(s.Data, s.ConsoleData, s.InputData, s.HostState) == s.Checksum
}

// computeChecksum hashes every state component in a fixed order. The
// hash must be fast enough to run over multi-megabyte buffers every
// confirmed tick.
func computeChecksum(data, consoleData, inputData []byte, hostState HostRollbackState) uint64 {
	var hs [HostStateSize]byte
	d := xxhash.New()
	d.Write(data)
	d.Write(consoleData)
	d.Write(inputData)
	d.Write(hostState.appendTo(hs[:0]))
	return d.Sum64()
}
