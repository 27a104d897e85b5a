package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "framelink"

// Registry holds all application metrics. All methods are nil-safe: a
// nil *Registry records nothing, so libraries can call through without
// guarding.
type Registry struct {
	reg *prometheus.Registry

	messagesReceived *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	joinsAccepted    prometheus.Counter
	joinsRejected    *prometheus.CounterVec
	lobbyPlayers     prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sendFailures     prometheus.Counter

	snapshotSaves  prometheus.Counter
	snapshotLoads  prometheus.Counter
	snapshotBytes  prometheus.Histogram
	poolFallbacks  prometheus.Counter
	desyncsFlagged prometheus.Counter
}

// NewRegistry creates a registry with all Framelink metrics registered,
// alongside the standard Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "messages_received_total",
			Help:      "Inbound handshake messages by type.",
		}, []string{"type"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "decode_failures_total",
			Help:      "Inbound datagrams that failed frame decoding.",
		}),
		joinsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "joins_accepted_total",
			Help:      "Join requests accepted into the lobby.",
		}),
		joinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "joins_rejected_total",
			Help:      "Join requests rejected, by reason.",
		}, []string{"reason"}),
		lobbyPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "lobby_players",
			Help:      "Current lobby occupancy including the host.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "sessions_started_total",
			Help:      "Sessions handed off to the rollback engine.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "send_failures_total",
			Help:      "Outbound datagrams the transport refused.",
		}),
		snapshotSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "snapshot_saves_total",
			Help:      "Game state snapshots captured.",
		}),
		snapshotLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "snapshot_loads_total",
			Help:      "Game state snapshots restored.",
		}),
		snapshotBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "snapshot_bytes",
			Help:      "Size of captured snapshots in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		poolFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "pool_fallback_allocations_total",
			Help:      "Buffer acquisitions the pool could not serve from cache.",
		}),
		desyncsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "desyncs_flagged_total",
			Help:      "Checksum mismatches flagged against remote peers.",
		}),
	}

	reg.MustRegister(
		r.messagesReceived,
		r.decodeFailures,
		r.joinsAccepted,
		r.joinsRejected,
		r.lobbyPlayers,
		r.sessionsStarted,
		r.sendFailures,
		r.snapshotSaves,
		r.snapshotLoads,
		r.snapshotBytes,
		r.poolFallbacks,
		r.desyncsFlagged,
	)

	return r
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Register adds an extra collector, such as the pool Collector.
func (r *Registry) Register(c prometheus.Collector) error {
	if r == nil {
		return nil
	}
	return r.reg.Register(c)
}

// MessageReceived counts one inbound handshake message.
func (r *Registry) MessageReceived(msgType string) {
	if r == nil {
		return
	}
	r.messagesReceived.WithLabelValues(msgType).Inc()
}

// DecodeFailed counts one undecodable inbound datagram.
func (r *Registry) DecodeFailed() {
	if r == nil {
		return
	}
	r.decodeFailures.Inc()
}

// JoinAccepted counts one admitted guest.
func (r *Registry) JoinAccepted() {
	if r == nil {
		return
	}
	r.joinsAccepted.Inc()
}

// JoinRejected counts one rejected join by reason.
func (r *Registry) JoinRejected(reason string) {
	if r == nil {
		return
	}
	r.joinsRejected.WithLabelValues(reason).Inc()
}

// SetLobbyPlayers records current lobby occupancy.
func (r *Registry) SetLobbyPlayers(n float64) {
	if r == nil {
		return
	}
	r.lobbyPlayers.Set(n)
}

// SessionStarted counts one successful session start.
func (r *Registry) SessionStarted() {
	if r == nil {
		return
	}
	r.sessionsStarted.Inc()
}

// SendFailed counts one refused outbound datagram.
func (r *Registry) SendFailed() {
	if r == nil {
		return
	}
	r.sendFailures.Inc()
}

// SnapshotSaved records one captured snapshot and its size.
func (r *Registry) SnapshotSaved(bytes int) {
	if r == nil {
		return
	}
	r.snapshotSaves.Inc()
	r.snapshotBytes.Observe(float64(bytes))
}

// SnapshotLoaded counts one restored snapshot.
func (r *Registry) SnapshotLoaded() {
	if r == nil {
		return
	}
	r.snapshotLoads.Inc()
}

// PoolFallback counts one acquisition the pool served with a fresh
// allocation instead of a cached buffer.
func (r *Registry) PoolFallback() {
	if r == nil {
		return
	}
	r.poolFallbacks.Inc()
}

// DesyncFlagged counts one checksum mismatch against a remote peer.
func (r *Registry) DesyncFlagged() {
	if r == nil {
		return
	}
	r.desyncsFlagged.Inc()
}
