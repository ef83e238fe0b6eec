// Package metrics exposes editing and replication metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry, so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	clients    prometheus.Gauge
	frames     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blockdoc_operations_total",
			Help: "Editing operations by name and outcome (committed, noop, failed)",
		}, []string{"op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blockdoc_operation_duration_seconds",
			Help:    "Time spent planning and committing an editing operation",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"op"}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "blockdoc_relay_clients",
			Help: "Connected replication clients",
		}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blockdoc_relay_frames_total",
			Help: "Relay frames by direction and type",
		}, []string{"direction", "type"}),
	}
}

// ObserveOperation implements engine.Recorder.
func (m *Metrics) ObserveOperation(name, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ClientConnected()    { m.clients.Inc() }
func (m *Metrics) ClientDisconnected() { m.clients.Dec() }

// Frame counts one relay frame; direction is "in" or "out".
func (m *Metrics) Frame(direction, frameType string) {
	m.frames.WithLabelValues(direction, frameType).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
