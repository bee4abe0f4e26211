package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts stream activity per backend. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fragments     *prometheus.CounterVec
	fragmentBytes *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	timeToFirst   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_stream_fragments_total",
				Help: "Text fragments delivered to the caller, including empty ones.",
			},
			[]string{"backend"},
		),
		fragmentBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_stream_fragment_bytes_total",
				Help: "Bytes of text delivered to the caller.",
			},
			[]string{"backend"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_stream_reconnects_total",
				Help: "Reconnect attempts after a dropped stream.",
			},
			[]string{"backend"},
		),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_stream_decode_errors_total",
				Help: "Events that could not be decoded and were skipped.",
			},
			[]string{"backend"},
		),
		timeToFirst: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_stream_time_to_first_fragment_seconds",
				Help:    "Time from request to the first non-empty fragment.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend"},
		),
	}
	m.registry.MustRegister(m.fragments, m.fragmentBytes, m.reconnects, m.decodeErrors, m.timeToFirst)
	return m
}

// WriteFile writes the current values in the Prometheus text format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) fragment(backend string, d Delta) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(backend).Inc()
	m.fragmentBytes.WithLabelValues(backend).Add(float64(len(d.Text)))
}

func (m *Metrics) firstFragment(backend string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.timeToFirst.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *Metrics) reconnect(backend string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(backend).Inc()
}

func (m *Metrics) decodeError(backend string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(backend).Inc()
}
