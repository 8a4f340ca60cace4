package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceflow/models"
)

func sampleSummary() *models.RunSummary {
	start := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	s := models.NewRunSummary("run-1", start)
	s.RecordSuccess("AAPL", 100)
	s.RecordSuccess("MSFT", 0)
	s.RecordFailure("IBM", models.FailureRateLimited, "quota")
	s.FetchAttempts = 5
	s.FinishedAt = start.Add(90 * time.Second)
	return s
}

func TestRunCollectors(t *testing.T) {
	reg := RunCollectors(sampleSummary())

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	expected := `
# HELP priceflow_symbol_rows Rows upserted per symbol in the last run.
# TYPE priceflow_symbol_rows gauge
priceflow_symbol_rows{symbol="AAPL"} 100
priceflow_symbol_rows{symbol="MSFT"} 0
# HELP priceflow_run_duration_seconds Wall time of the last run.
# TYPE priceflow_run_duration_seconds gauge
priceflow_run_duration_seconds 90
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"priceflow_symbol_rows", "priceflow_run_duration_seconds"))
}

func TestPushRunMetrics(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, PushRunMetrics(context.Background(), srv.URL, "priceflow", sampleSummary()))
	assert.Equal(t, "/metrics/job/priceflow", path)
	assert.NotEmpty(t, body)
}

func TestPushRunMetricsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, PushRunMetrics(context.Background(), srv.URL, "priceflow", sampleSummary()))
}
