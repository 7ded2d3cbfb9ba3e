package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_ExposesMetrics(t *testing.T) {
	rec := NewPrometheusRecorder(prom.NewRegistry())

	rec.ObserveStageDuration("generating", 2*time.Second)
	rec.IncStageResult("generating", ResultSuccess)
	rec.ObserveBuildDuration(30 * time.Second)
	rec.IncBuildOutcome("done")
	rec.IncRetryAttempt("notify")
	rec.IncRetryExhausted("notify")
	rec.IncCallbackDelivery(true)
	rec.IncCallbackDelivery(false)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	for _, metric := range []string{
		"appforge_stage_duration_seconds",
		"appforge_stage_results_total",
		"appforge_build_duration_seconds",
		"appforge_build_outcomes_total",
		"appforge_retry_attempts_total",
		"appforge_retry_exhausted_total",
		"appforge_callback_deliveries_total",
	} {
		assert.Contains(t, body, metric)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *PrometheusRecorder
	rec.ObserveStageDuration("x", time.Second)
	rec.IncStageResult("x", ResultFailed)
	rec.ObserveBuildDuration(time.Second)
	rec.IncBuildOutcome("failed")
	rec.IncRetryAttempt("op")
	rec.IncRetryExhausted("op")
	rec.IncCallbackDelivery(false)
}
