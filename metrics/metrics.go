// Package metrics exposes Prometheus metrics for the verifier service on a
// dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification results.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	verifications  *prometheus.CounterVec
	verifyDuration prometheus.Histogram
}

// New registers the service metrics under namespace. listenAddr may be empty
// when the caller only needs Handler.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	m := &MetricsServer{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_verifications_total",
			Help:      "Layer 0 chain verifications by result.",
		}, []string{"result"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_verification_duration_seconds",
			Help:      "Time spent verifying a Layer 0 chain.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verifications,
		m.verifyDuration,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	m.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	return mux
}

// ObserveVerification records one chain verification.
func (m *MetricsServer) ObserveVerification(result string, took time.Duration) {
	m.verifications.WithLabelValues(result).Inc()
	m.verifyDuration.Observe(took.Seconds())
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
