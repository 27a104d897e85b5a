package rollback

import (
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// DefaultMaxRollbackFrames is the deepest rollback window supported by
// default, matching the network config default.
const DefaultMaxRollbackFrames = 8

// DefaultPoolSize leaves slack above the rollback window for the
// engine's in-flight save during a replay.
const DefaultPoolSize = DefaultMaxRollbackFrames + 2

// DefaultMaxStateSize bounds a single capture when the console's real
// memory limit is not known.
const DefaultMaxStateSize = 16 << 20

// Pool is a bounded collection of reusable pre-sized buffers for state
// saves. The save path may run several times per frame during a
// rollback replay, so it must not allocate at steady state.
//
// The pool size is a hint, never a hard cap: an empty pool allocates a
// fresh buffer rather than failing.
type Pool struct {
	buffers    [][]byte
	bufferSize int

	log     logger.Logger
	metrics *metric.Registry
}

// NewPool pre-allocates poolSize buffers of bufferSize capacity each.
func NewPool(bufferSize, poolSize int, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	buffers := make([][]byte, poolSize)
	for i := range buffers {
		buffers[i] = make([]byte, 0, bufferSize)
	}
	return &Pool{
		buffers:    buffers,
		bufferSize: bufferSize,
		log:        o.log,
		metrics:    o.metrics,
	}
}

// Acquire returns a zero-length buffer with at least the configured
// capacity. When the pool is empty it allocates a fresh one; that is
// rare at steady state and worth a warning when it is not.
func (p *Pool) Acquire() []byte {
	if n := len(p.buffers); n > 0 {
		buf := p.buffers[n-1]
		p.buffers = p.buffers[:n-1]
		return buf
	}
	p.metrics.PoolFallback()
	p.log.Warn("state pool exhausted, allocating fresh buffer",
		"buffer_size", p.bufferSize)
	return make([]byte, 0, p.bufferSize)
}

// Release returns a buffer for reuse. Contents are not cleared; callers
// must fully overwrite a buffer before relying on it. Buffers that grew
// past twice the configured size are dropped to keep the pool's
// footprint bounded.
func (p *Pool) Release(buf []byte) {
	if cap(buf) > p.bufferSize*2 {
		return
	}
	p.buffers = append(p.buffers, buf[:0])
}

// Available returns the number of idle buffers.
func (p *Pool) Available() int {
	return len(p.buffers)
}

// BufferSize returns the configured per-buffer capacity.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}
