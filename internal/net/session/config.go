package session

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/framelink/framelink-go/internal/net/wire"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// Config carries the compatibility parameters a session is validated
// against. It is immutable for the lifetime of the session: every field
// that feeds simulation determinism is fixed before the first join is
// accepted.
type Config struct {
	Console    wire.ConsoleType
	ROMHash    uint64
	TickRate   wire.TickRate
	MaxPlayers uint8
	Network    wire.NetworkConfig
	// Save optionally configures synchronized save distribution; nil
	// means every peer starts from its own save.
	Save *wire.SaveConfig
}

// Verify validates the configuration before a state machine is built
// around it.
func (c Config) Verify() error {
	if c.MaxPlayers < 2 {
		return ErrInvalidConfig.WithDetails("max_players must be at least 2")
	}
	if c.MaxPlayers > wire.MaxPlayerSlots {
		return ErrInvalidConfig.WithDetails(
			fmt.Sprintf("max_players %d exceeds protocol limit %d", c.MaxPlayers, wire.MaxPlayerSlots))
	}
	if c.TickRate.Hz() == 0 {
		return ErrInvalidConfig.WithDetails("unknown tick rate")
	}
	return nil
}

// Sender is the unreliable outbound transport supplied by the embedding
// application. SendTo must not block; delivery is best-effort and a
// returned error means no more than a dropped datagram would.
type Sender interface {
	SendTo(addr netip.AddrPort, msg wire.Message) error
}

// Clock abstracts the monotonic time source used for last_seen and
// start_time stamps, so tests can drive time explicitly.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Host or Guest at construction.
type Option func(*options)

type options struct {
	clock   Clock
	log     logger.Logger
	metrics *metric.Registry
}

func defaultOptions() options {
	return options{
		clock: realClock{},
		log:   logger.Default(),
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger overrides the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics attaches a metrics registry. A nil registry is valid and
// disables instrumentation.
func WithMetrics(m *metric.Registry) Option {
	return func(o *options) { o.metrics = m }
}
