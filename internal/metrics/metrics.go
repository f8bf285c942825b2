// Package metrics collects and exposes Prometheus metrics for the
// status update manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the agent's status update metrics.
type Collector struct {
	updatesReceived  prometheus.Counter
	updatesDuplicate prometheus.Counter
	acks             prometheus.Counter
	retries          prometheus.Counter
	streamErrors     prometheus.Counter

	streams prometheus.Gauge

	checkpointAppend prometheus.Histogram
}

// NewCollector creates the metric set and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		updatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_status_updates_received_total",
			Help: "Total number of status updates received from executors",
		}),
		updatesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_status_updates_duplicate_total",
			Help: "Total number of duplicate or already-acknowledged status updates ignored",
		}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_status_acks_total",
			Help: "Total number of framework acknowledgements processed",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_status_retries_total",
			Help: "Total number of status update retransmissions to the master",
		}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_stream_errors_total",
			Help: "Total number of update streams that entered a terminal error state",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_update_streams",
			Help: "Current number of open update streams",
		}),
		checkpointAppend: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_checkpoint_append_seconds",
			Help:    "Latency of durable checkpoint appends in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.updatesReceived,
		c.updatesDuplicate,
		c.acks,
		c.retries,
		c.streamErrors,
		c.streams,
		c.checkpointAppend,
	)

	return c
}

// RecordUpdate records a status update accepted from an executor.
func (c *Collector) RecordUpdate() {
	c.updatesReceived.Inc()
}

// RecordDuplicate records an ignored duplicate update.
func (c *Collector) RecordDuplicate() {
	c.updatesDuplicate.Inc()
}

// RecordAck records a processed framework acknowledgement.
func (c *Collector) RecordAck() {
	c.acks.Inc()
}

// RecordRetry records a retransmission to the master.
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// RecordStreamError records a stream entering its terminal error state.
func (c *Collector) RecordStreamError() {
	c.streamErrors.Inc()
}

// SetStreams updates the open stream count.
func (c *Collector) SetStreams(n int) {
	c.streams.Set(float64(n))
}

// ObserveCheckpointAppend records the latency of one durable append.
func (c *Collector) ObserveCheckpointAppend(seconds float64) {
	c.checkpointAppend.Observe(seconds)
}
