package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phishguard/backend/internal/engine"
)

// scanMetrics is registered on a per-server registry so several servers can coexist in tests.
type scanMetrics struct {
	registry      *prometheus.Registry
	scans         *prometheus.CounterVec
	visual        *prometheus.CounterVec
	duration      prometheus.Histogram
	auditFailures prometheus.Counter
	vetoes        prometheus.Counter
}

func newScanMetrics() *scanMetrics {
	m := &scanMetrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phishguard",
			Name:      "scans_total",
			Help:      "Completed scans by final verdict and sensitivity.",
		}, []string{"verdict", "sensitivity"}),
		visual: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phishguard",
			Name:      "visual_results_total",
			Help:      "Visual matcher outcomes by verdict and locating method.",
		}, []string{"verdict", "method"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phishguard",
			Name:      "scan_duration_seconds",
			Help:      "End-to-end analysis latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phishguard",
			Name:      "audit_failures_total",
			Help:      "Scans whose audit row could not be written.",
		}),
		vetoes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phishguard",
			Name:      "visual_vetoes_total",
			Help:      "Scans where the visual contribution was dampened for lack of a text signal.",
		}),
	}
	m.registry.MustRegister(
		m.scans,
		m.visual,
		m.duration,
		m.auditFailures,
		m.vetoes,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *scanMetrics) observe(r engine.Result, elapsed time.Duration) {
	m.scans.WithLabelValues(string(r.Verdict), string(r.Sensitivity)).Inc()
	method := r.Visual.Method
	if method == "" {
		method = "none"
	}
	m.visual.WithLabelValues(string(r.Visual.Verdict), method).Inc()
	m.duration.Observe(elapsed.Seconds())
	if r.Vetoed {
		m.vetoes.Inc()
	}
}

func (m *scanMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
