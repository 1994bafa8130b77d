package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New("test")

	m.ObservePurchase("committed")
	m.ObservePurchase("committed")
	m.ObserveCompensation("refund", "ok")
	m.ObserveCache(true)
	m.ObserveCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.purchases.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("refund", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePurchase("committed")
		m.ObserveRequest("GET", "/health", "200", time.Millisecond)
		m.ObserveCompensation("refund", "failed")
		m.ObserveCache(true)
	})
}

func TestHandlerExposesRequestMetrics(t *testing.T) {
	m := New("shop")
	m.ObserveRequest("POST", "/sales", "200", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shop_http_requests_total{method="POST",route="/sales",status="200"} 1`)
}
