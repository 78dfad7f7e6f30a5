package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	defaultRecorder *Recorder

	// Registration guard
	metricsOnce sync.Once
)

// Recorder records per-operation counts and latencies for the cloud clients.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder creates a Recorder whose collectors are registered with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rc_operations_total",
				Help: "Total number of client operations by outcome",
			},
			[]string{"component", "operation", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rc_operation_duration_seconds",
				Help:    "Duration of client operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"component", "operation"},
		),
	}
}

// InitMetrics registers the collectors with the default Prometheus registry.
// Clients record here unless given their own Recorder. Safe to call more
// than once; every call returns the same Recorder.
func InitMetrics() *Recorder {
	metricsOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// Observe records one finished operation that started at start.
func (r *Recorder) Observe(component, operation string, start time.Time, err error) {
	if r == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.operations.WithLabelValues(component, operation, status).Inc()
	r.duration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

// Operations returns the operation counter for testing.
func (r *Recorder) Operations() *prometheus.CounterVec {
	return r.operations
}
