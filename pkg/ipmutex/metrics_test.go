package ipmutex

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prometheusToFloat64(c prometheus.Collector) float64 {
	m := &dto.Metric{}
	switch c := c.(type) {
	case prometheus.Gauge:
		_ = c.Write(m)
		return m.GetGauge().GetValue()
	case prometheus.Counter:
		_ = c.Write(m)
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	mu, err := NewWithConfig("metrics-register", testConfig(t.TempDir()))
	require.NoError(t, err)
	defer mu.Close()
	require.True(t, mu.TryLock())
	mu.Unlock()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ipmutex_acquisitions_total"])
	assert.True(t, names["ipmutex_segments_open"])
}

func TestAcquisitionMetrics(t *testing.T) {
	config := testConfig(t.TempDir())
	a, err := NewWithConfig("metrics-acq", config)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewWithConfig("metrics-acq", config)
	require.NoError(t, err)
	defer b.Close()

	viaTry := acquisitions.WithLabelValues("/metrics-acq", "trylock")
	viaLock := acquisitions.WithLabelValues("/metrics-acq", "lock")
	waits := contended.WithLabelValues("/metrics-acq")
	try0, lock0, wait0 := prometheusToFloat64(viaTry), prometheusToFloat64(viaLock), prometheusToFloat64(waits)

	require.True(t, a.TryLock())
	done := make(chan error, 1)
	go func() { done <- b.Lock() }()
	time.Sleep(30 * time.Millisecond)
	a.Unlock()
	require.NoError(t, <-done)
	b.Unlock()

	assert.Equal(t, try0+1, prometheusToFloat64(viaTry))
	assert.Equal(t, lock0+1, prometheusToFloat64(viaLock))
	assert.Equal(t, wait0+1, prometheusToFloat64(waits))
}

func TestSegmentsOpenGauge(t *testing.T) {
	owners := segmentsOpen.WithLabelValues("owner")
	attachers := segmentsOpen.WithLabelValues("attacher")
	owners0, attachers0 := prometheusToFloat64(owners), prometheusToFloat64(attachers)

	config := testConfig(t.TempDir())
	a, err := NewWithConfig("metrics-gauge", config)
	require.NoError(t, err)
	b, err := NewWithConfig("metrics-gauge", config)
	require.NoError(t, err)
	assert.Equal(t, owners0+1, prometheusToFloat64(owners))
	assert.Equal(t, attachers0+1, prometheusToFloat64(attachers))

	b.Close()
	a.Close()
	a.Close()
	assert.Equal(t, owners0, prometheusToFloat64(owners))
	assert.Equal(t, attachers0, prometheusToFloat64(attachers))
}

func TestForgetMetrics(t *testing.T) {
	locks := NewRegistry(testConfig(t.TempDir()))
	defer locks.Close()

	mu, err := locks.Open("metrics-forget")
	require.NoError(t, err)
	require.True(t, mu.TryLock())
	mu.Unlock()
	assert.Equal(t, float64(1), prometheusToFloat64(acquisitions.WithLabelValues("/metrics-forget", "trylock")))

	// the last release drops the key's series
	require.True(t, locks.Release("metrics-forget"))
	assert.Zero(t, acquisitions.DeletePartialMatch(prometheus.Labels{"key": "/metrics-forget"}))

	ForgetMetrics("a/b")
}
