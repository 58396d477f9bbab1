package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer_ExposesRegisteredCollectors(t *testing.T) {
	m, err := New("seal_session", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, "seal_session", m.Namespace())

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.Namespace(),
		Name:      "test_total",
		Help:      "test counter",
	})
	require.NoError(t, m.Registerer().Register(counter))
	counter.Add(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "seal_session_test_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}
