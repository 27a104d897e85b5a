package rollback

import (
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// StateSource is the view of a running game instance the manager saves
// and restores. It mirrors the sandbox's save/load surface: Data is the
// full serialized game memory; the console record, input registers and
// host variables live outside that memory but still feed determinism.
type StateSource interface {
	// SaveState appends the serialized game memory to buf and returns
	// the extended slice.
	SaveState(buf []byte) ([]byte, error)
	// LoadState restores the game memory from data.
	LoadState(data []byte) error

	// ConsoleState returns the console's fixed-size rollback record.
	ConsoleState() []byte
	// RestoreConsoleState restores the console record. It must reject
	// records of the wrong size.
	RestoreConsoleState(data []byte) error

	// InputState returns the captured input registers, previous and
	// current, so edge-triggered input queries survive a rollback.
	InputState() []byte
	// RestoreInputState restores the input registers.
	RestoreInputState(data []byte) error

	// HostState returns the host-side simulation variables.
	HostState() HostRollbackState
	// RestoreHostState restores the host-side simulation variables.
	RestoreHostState(state HostRollbackState)
}

// Manager drives state saves and loads for the rollback engine. It
// retains one snapshot per saved frame until the frame is confirmed,
// recycling buffers through a Pool to keep the hot path allocation-free.
//
// The manager is for sequential use by a single logical owner.
type Manager struct {
	pool         *Pool
	maxStateSize int
	retained     map[int64]Snapshot

	log     logger.Logger
	metrics *metric.Registry
}

// NewManager creates a manager bounded by maxStateSize per capture.
// maxStateSize should match the console's memory limit; the pool is
// sized for the default rollback window.
func NewManager(maxStateSize int, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		pool:         NewPool(maxStateSize, DefaultPoolSize, opts...),
		maxStateSize: maxStateSize,
		retained:     make(map[int64]Snapshot),
		log:          o.log,
		metrics:      o.metrics,
	}
}

// NewManagerWithDefaults creates a manager with the fallback state
// bound. Prefer NewManager with the console's real memory limit.
func NewManagerWithDefaults(opts ...Option) *Manager {
	return NewManager(DefaultMaxStateSize, opts...)
}

// SaveFrame captures the source's full state at frame and retains the
// snapshot for later rollback. Saving a frame that is already retained
// replaces the old snapshot and recycles its buffer.
func (m *Manager) SaveFrame(src StateSource, frame int64) (Snapshot, error) {
	buf := m.pool.Acquire()

	data, err := src.SaveState(buf)
	if err != nil {
		m.pool.Release(buf)
		return EmptySnapshot(), &SaveStateError{Frame: frame, Err: err}
	}

	// The console, input and host records are tiny; copying them keeps
	// the snapshot self-contained while the big buffer stays pooled.
	consoleData := cloneBytes(src.ConsoleState())
	inputData := cloneBytes(src.InputState())
	hostState := src.HostState()

	total := len(data) + len(consoleData) + len(inputData) + HostStateSize
	if total > m.maxStateSize {
		m.pool.Release(data)
		return EmptySnapshot(), &SaveStateError{
			Frame: frame,
			Err:   &StateTooLargeError{Size: total, Max: m.maxStateSize},
		}
	}

	snap := FromFullState(data, consoleData, inputData, hostState, frame)

	if old, ok := m.retained[frame]; ok {
		m.Recycle(old)
	}
	m.retained[frame] = snap

	m.metrics.SnapshotSaved(total)
	return snap, nil
}

// LoadFrame restores the source to a retained frame. The snapshot's
// checksum is re-verified before any state is touched, so a corrupted
// buffer can never be silently replayed into the simulation.
func (m *Manager) LoadFrame(src StateSource, frame int64) error {
	snap, ok := m.retained[frame]
	if !ok {
		return &LoadStateError{Frame: frame, Err: ErrFrameNotRetained}
	}
	return m.LoadSnapshot(src, snap)
}

// LoadSnapshot restores the source from an explicit snapshot.
func (m *Manager) LoadSnapshot(src StateSource, snap Snapshot) error {
	if snap.IsEmpty() {
		return nil
	}
	if !snap.Verify() {
		return &LoadStateError{Frame: snap.Frame, Err: ErrChecksumMismatch}
	}

	if err := src.LoadState(snap.Data); err != nil {
		return &LoadStateError{Frame: snap.Frame, Err: err}
	}
	if len(snap.ConsoleData) > 0 {
		if err := src.RestoreConsoleState(snap.ConsoleData); err != nil {
			return &LoadStateError{Frame: snap.Frame, Err: err}
		}
	}
	if len(snap.InputData) > 0 {
		if err := src.RestoreInputState(snap.InputData); err != nil {
			return &LoadStateError{Frame: snap.Frame, Err: err}
		}
	}
	src.RestoreHostState(snap.HostState)

	m.metrics.SnapshotLoaded()
	return nil
}

// Snapshot returns the retained snapshot for a frame.
func (m *Manager) Snapshot(frame int64) (Snapshot, bool) {
	snap, ok := m.retained[frame]
	return snap, ok
}

// ConfirmFrame marks every frame before the given one as unreachable by
// any future rollback and recycles their buffers.
func (m *Manager) ConfirmFrame(frame int64) {
	for f, snap := range m.retained {
		if f < frame {
			m.Recycle(snap)
			delete(m.retained, f)
		}
	}
}

// Recycle returns a snapshot's buffer to the pool. Only the big game
// memory buffer is pooled; the small side records are left to the GC.
func (m *Manager) Recycle(snap Snapshot) {
	if len(snap.Data) > 0 {
		m.pool.Release(snap.Data)
	}
}

// CheckRemoteChecksum compares a peer's reported checksum for a frame
// against ours. A mismatch on a retained frame is a desync. An unknown
// frame reports true: it may simply be confirmed and recycled already.
func (m *Manager) CheckRemoteChecksum(frame int64, remote uint64) bool {
	snap, ok := m.retained[frame]
	if !ok {
		return true
	}
	if snap.Checksum == remote {
		return true
	}
	m.metrics.DesyncFlagged()
	m.log.Error("desync detected",
		"frame", frame,
		"local_checksum", snap.Checksum,
		"remote_checksum", remote)
	return false
}

// RetainedFrames returns how many snapshots are currently held.
func (m *Manager) RetainedFrames() int {
	return len(m.retained)
}

// Stats implements metric.StatsSource for scrape-time gauges.
func (m *Manager) Stats() metric.Stats {
	return metric.Stats{
		AvailableBuffers: m.pool.Available(),
		RetainedFrames:   len(m.retained),
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
