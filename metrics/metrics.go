// Package metrics serves Prometheus metrics on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer owns a registry and the HTTP server exposing it at /metrics.
type MetricsServer struct {
	namespace string
	registry  *prometheus.Registry
	srv       *http.Server
}

// New creates a metrics server for namespace listening on addr. The registry
// starts with the Go runtime and process collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace})); err != nil {
		return nil, err
	}

	m := &MetricsServer{
		namespace: namespace,
		registry:  registry,
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", m.Handler())
	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Namespace returns the metric namespace.
func (m *MetricsServer) Namespace() string {
	return m.namespace
}

// Registerer is where components register their collectors.
func (m *MetricsServer) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenAndServe blocks serving metrics until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
