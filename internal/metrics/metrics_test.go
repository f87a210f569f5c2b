package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.ObserveAnalysis(OutcomePrediction)
	m.ObserveAnalysis(OutcomePrediction)
	m.ObserveAnalysis(OutcomeInsufficient)
	m.AddIngested("Tomatoes", 5)
	m.AddIngested("Tomatoes", 0)
	m.ObserveIngestionRun(RunOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyses.WithLabelValues(OutcomePrediction)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues(OutcomeInsufficient)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ingested.WithLabelValues("Tomatoes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestionRuns.WithLabelValues(RunOK)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)
	m.ObserveAnalysis(OutcomeError)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sprout_http_request_duration_seconds"))
	assert.True(t, strings.Contains(body, `sprout_analyses_total{outcome="error"} 1`))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis(OutcomePrediction)
	m.AddIngested("Kale", 3)
	m.ObserveIngestionRun(RunFailed)
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Second)
	assert.Nil(t, m.Registry())
}
