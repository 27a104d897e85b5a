package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time reading of the rollback engine's buffers.
type Stats struct {
	// AvailableBuffers is how many state buffers sit idle in the pool.
	AvailableBuffers int
	// RetainedFrames is how many historical snapshots are held.
	RetainedFrames int
}

// StatsSource reports live rollback statistics. The snapshot manager
// implements it.
type StatsSource interface {
	Stats() Stats
}

// Collector exposes live rollback state as gauges, sampled at scrape
// time rather than on every engine operation.
type Collector struct {
	source    StatsSource
	available *prometheus.Desc
	retained  *prometheus.Desc
}

// NewCollector creates a collector over the given source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		available: prometheus.NewDesc(
			namespace+"_rollback_pool_available_buffers",
			"State buffers idle in the pool.",
			nil, nil),
		retained: prometheus.NewDesc(
			namespace+"_rollback_retained_frames",
			"Historical frame snapshots currently held.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.available
	ch <- c.retained
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.AvailableBuffers))
	ch <- prometheus.MustNewConstMetric(c.retained, prometheus.GaugeValue, float64(s.RetainedFrames))
}
