// Run gauges pushed to a Prometheus Pushgateway at the end of each run:
//
//	priceflow_rows_written
//	priceflow_symbols_succeeded / priceflow_symbols_failed
//	priceflow_fetch_attempts / priceflow_entries_skipped
//	priceflow_run_duration_seconds
//	priceflow_last_run_timestamp_seconds
//	priceflow_symbol_rows{symbol}
//
// A batch job has no long-lived /metrics endpoint to scrape, so the values
// are pushed once under the configured job name.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"priceflow/models"
)

// RunCollectors builds a fresh registry populated from summary.
func RunCollectors(summary *models.RunSummary) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		g.Set(v)
		reg.MustRegister(g)
	}
	gauge("priceflow_rows_written", "Rows upserted in the last run.", float64(summary.TotalRows))
	gauge("priceflow_symbols_succeeded", "Symbols that completed in the last run.", float64(len(summary.Succeeded)))
	gauge("priceflow_symbols_failed", "Symbols that failed in the last run.", float64(len(summary.Failed)))
	gauge("priceflow_fetch_attempts", "Provider requests made in the last run.", float64(summary.FetchAttempts))
	gauge("priceflow_entries_skipped", "Malformed provider entries skipped in the last run.", float64(summary.EntriesSkipped))
	gauge("priceflow_run_duration_seconds", "Wall time of the last run.", summary.Duration().Seconds())
	gauge("priceflow_last_run_timestamp_seconds", "Unix time the last run finished.", float64(summary.FinishedAt.Unix()))

	perSymbol := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "priceflow_symbol_rows",
		Help: "Rows upserted per symbol in the last run.",
	}, []string{"symbol"})
	for _, r := range summary.Succeeded {
		perSymbol.WithLabelValues(r.Symbol).Set(float64(r.Rows))
	}
	reg.MustRegister(perSymbol)

	return reg
}

// PushRunMetrics replaces the job's metric group on the Pushgateway at url.
func PushRunMetrics(ctx context.Context, url, job string, summary *models.RunSummary) error {
	err := push.New(url, job).
		Gatherer(RunCollectors(summary)).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push run metrics to %s: %w", url, err)
	}
	return nil
}
