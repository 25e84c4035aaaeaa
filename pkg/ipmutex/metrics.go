package ipmutex

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricsNamespace = "ipmutex"

// Every vector but segments_open is labelled with the resolved key, so each
// distinct key adds series. Processes that churn through keys, such as the
// pid-derived default keys, should call ForgetMetrics once a key is done
// with; Registry does so when it closes a key.

var (
	acquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "acquisitions_total",
		Help:      "Number of successful lock acquisitions.",
	}, []string{"key", "mode"})

	contended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "contended_total",
		Help:      "Number of Lock calls that found the lock held.",
	}, []string{"key"})

	waitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "wait_seconds",
		Help:      "Time spent blocked in contended Lock calls.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"key"})

	ownerDead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "owner_dead_total",
		Help:      "Number of locks taken over from a holder that exited.",
	}, []string{"key"})

	segmentsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "segments_open",
		Help:      "Mutex instances currently mapped by this process.",
	}, []string{"role"})
)

// Collectors returns the package's prometheus collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{acquisitions, contended, waitSeconds, ownerDead, segmentsOpen}
}

// RegisterMetrics registers the package's collectors with reg. Collectors
// that are already registered are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ForgetMetrics drops the series recorded for key. Counters restart from
// zero if key is used again.
func ForgetMetrics(key string) {
	resolved, err := resolveKey(key)
	if err != nil {
		return
	}
	labels := prometheus.Labels{"key": resolved}
	acquisitions.DeletePartialMatch(labels)
	contended.DeletePartialMatch(labels)
	waitSeconds.DeletePartialMatch(labels)
	ownerDead.DeletePartialMatch(labels)
}

func roleLabel(owner bool) string {
	if owner {
		return "owner"
	}
	return "attacher"
}

// instruments are the otel counterparts, bound to one Mutex.
type instruments struct {
	attrs        metric.MeasurementOption
	acquisitions metric.Int64Counter
	wait         metric.Float64Histogram
}

func newInstruments(meter metric.Meter, key string) (*instruments, error) {
	acq, err := meter.Int64Counter("ipmutex.lock.acquisitions",
		metric.WithDescription("Number of successful lock acquisitions."))
	if err != nil {
		return nil, err
	}
	wait, err := meter.Float64Histogram("ipmutex.lock.wait",
		metric.WithDescription("Time spent blocked in contended Lock calls."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &instruments{
		attrs:        metric.WithAttributes(attribute.String("ipmutex.key", key)),
		acquisitions: acq,
		wait:         wait,
	}, nil
}

func (m *Mutex) recordAcquired(mode string) {
	acquisitions.WithLabelValues(m.key, mode).Inc()
	m.inst.acquisitions.Add(context.Background(), 1, m.inst.attrs)
}

func (m *Mutex) recordWait(d time.Duration) {
	contended.WithLabelValues(m.key).Inc()
	waitSeconds.WithLabelValues(m.key).Observe(d.Seconds())
	m.inst.wait.Record(context.Background(), d.Seconds(), m.inst.attrs)
}
