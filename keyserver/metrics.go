package keyserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the key-server Prometheus collectors.
type Metrics struct {
	requests        prometheus.Counter
	errors          *prometheus.CounterVec
	keysPerRequest  prometheus.Histogram
	requestDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests rely on.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_key_requests_total",
			Help:      "Number of fetch-key requests received.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_key_errors_total",
			Help:      "Number of refused fetch-key requests by reason.",
		}, []string{"reason"}),
		keysPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_key_ids_per_request",
			Help:      "Number of keys returned per successful request.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_key_duration_seconds",
			Help:      "Time spent checking and answering fetch-key requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.errors, m.keysPerRequest, m.requestDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeError(err error) {
	m.errors.WithLabelValues(errorLabel(err)).Inc()
}
