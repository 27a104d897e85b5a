// Package metric provides Prometheus metrics for Framelink.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: metric registry and HTTP handler
//   - collector.go: live-state collector fed by the rollback engine
//
// Metrics include:
//
//   - Handshake message counters by type
//   - Join accept/reject counters
//   - Lobby occupancy gauge
//   - Snapshot save/load counters and sizes
//   - State pool statistics
//
// Metrics are exposed at /metrics in Prometheus format. Every Registry
// method is safe on a nil receiver, so instrumentation can be compiled
// in unconditionally and enabled by wiring.
package metric
