package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordUpdate()
	c.RecordUpdate()
	c.RecordDuplicate()
	c.RecordAck()
	c.RecordRetry()
	c.RecordStreamError()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.updatesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.updatesDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.acks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streamErrors))
}

func TestCollectorStreamsGauge(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetStreams(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.streams))

	c.SetStreams(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.streams))
}

func TestCollectorRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveCheckpointAppend(0.01)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 7)
}
