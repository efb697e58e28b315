package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheMiss()
		m.SetBreakerState("artifact-store", 1)
	})
}

func TestSetBreakerState(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.SetBreakerState("artifact-store", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("artifact-store")))
}

func TestIndexPageListsServiceFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := NewWithRegistry(reg)
	m.CacheMiss()

	rec := httptest.NewRecorder()
	serveMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "scrape: /metrics")
	assert.Contains(t, body, "http_requests_in_flight\tGAUGE")
	assert.NotContains(t, body, "go_goroutines")

	rec = httptest.NewRecorder()
	serveMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
