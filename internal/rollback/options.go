package rollback

import (
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// Option configures a Pool or Manager at construction.
type Option func(*options)

type options struct {
	log     logger.Logger
	metrics *metric.Registry
}

func defaultOptions() options {
	return options{log: logger.Default()}
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
