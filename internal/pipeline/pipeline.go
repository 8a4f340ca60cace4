package pipeline

//go:generate mockgen -source=pipeline.go -destination=mocks/mock_pipeline.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appconfig "priceflow/config"
	"priceflow/internal/metrics"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/processor"
)

// ErrPreflight is returned by Run when the run cannot start at all. No
// symbol is attempted in that case.
var ErrPreflight = errors.New("pipeline preflight failed")

// QuoteFetcher fetches and classifies one symbol's time series.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol string) models.FetchOutcome
}

// RowNormalizer turns a provider payload into price points.
type RowNormalizer interface {
	Normalize(symbol string, payload models.RawQuotePayload) ([]models.PricePoint, processor.Stats)
}

// PriceWriter persists one symbol's rows idempotently.
type PriceWriter interface {
	Upsert(ctx context.Context, symbol string, rows []models.PricePoint) (int, error)
}

// Archiver keeps a copy of one symbol's rows outside the database.
type Archiver interface {
	Archive(ctx context.Context, runID, symbol string, rows []models.PricePoint) error
}

// Orchestrator drives fetch, normalize and write for each symbol in order.
type Orchestrator struct {
	fetcher    QuoteFetcher
	normalizer RowNormalizer
	writer     PriceWriter
	archiver   Archiver

	apiKey string
	pause  time.Duration

	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	newRunID func() string
	log      *logger.Log
}

type Option func(*Orchestrator)

// WithArchiver uploads every successfully written symbol.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) {
		o.archiver = a
	}
}

func New(cfg appconfig.Config, fetcher QuoteFetcher, normalizer RowNormalizer, writer PriceWriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		normalizer: normalizer,
		writer:     writer,
		apiKey:     cfg.Provider.APIKey,
		pause:      cfg.Pipeline.SymbolPause,
		sleep:      sleepContext,
		now:        time.Now,
		newRunID:   uuid.NewString,
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) preflight(symbols []string) error {
	switch {
	case len(symbols) == 0:
		return fmt.Errorf("%w: no symbols configured", ErrPreflight)
	case o.apiKey == "":
		return fmt.Errorf("%w: %v", ErrPreflight, appconfig.ErrMissingAPIKey)
	case o.fetcher == nil || o.normalizer == nil || o.writer == nil:
		return fmt.Errorf("%w: pipeline is missing a collaborator", ErrPreflight)
	}
	return nil
}

// Run processes symbols one at a time. A failing symbol is recorded in the
// summary and never stops the others. Between two symbols the orchestrator
// pauses for the configured interval regardless of the previous outcome.
// Once ctx is cancelled the remaining symbols are recorded as cancelled.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	symbols = appconfig.NormalizeSymbols(symbols)
	if err := o.preflight(symbols); err != nil {
		return nil, err
	}

	summary := models.NewRunSummary(o.newRunID(), o.now().UTC())
	log := o.log.WithComponent("pipeline").WithField("run_id", summary.RunID)
	log.WithFields(logger.Fields{
		"symbols": symbols,
		"pause":   o.pause.String(),
	}).Info("starting run")

	for i, symbol := range symbols {
		if i > 0 {
			if err := o.sleep(ctx, o.pause); err != nil {
				o.cancelRemaining(summary, symbols[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			o.cancelRemaining(summary, symbols[i:], err)
			break
		}
		o.processSymbol(ctx, summary, symbol)
	}

	summary.FinishedAt = o.now().UTC()
	log.WithFields(logger.Fields{
		"succeeded":   len(summary.Succeeded),
		"failed":      len(summary.Failed),
		"total_rows":  summary.TotalRows,
		"duration_ms": summary.Duration().Milliseconds(),
	}).Info("run finished")
	return summary, nil
}

func (o *Orchestrator) processSymbol(ctx context.Context, summary *models.RunSummary, symbol string) {
	log := o.log.WithComponent("pipeline").WithFields(logger.Fields{
		"run_id": summary.RunID,
		"symbol": symbol,
	})
	start := time.Now()

	out := o.fetcher.Fetch(ctx, symbol)
	summary.FetchAttempts += out.Attempts

	switch out.Kind {
	case models.OutcomeSuccess:
	case models.OutcomeEmpty:
		log.Info("provider returned no data")
		summary.RecordSuccess(symbol, 0)
		return
	default:
		kind := models.FailureKindFor(out.Kind)
		if ctx.Err() != nil {
			kind = models.FailureCancelled
		}
		o.fail(summary, log, symbol, kind, out.Message)
		return
	}

	rows, stats := o.normalizer.Normalize(symbol, out.Payload)
	summary.EntriesSkipped += stats.Skipped
	logger.LogDataFlowEntry(log, "quote_client", "normalizer", len(rows), symbol)

	written, err := o.writer.Upsert(ctx, symbol, rows)
	if err != nil {
		o.fail(summary, log, symbol, models.FailureStoreWrite, err.Error())
		return
	}
	summary.RecordSuccess(symbol, written)
	logger.LogDataFlowEntry(log, "normalizer", "store_writer", written, symbol)

	if o.archiver != nil && written > 0 {
		if err := o.archiver.Archive(ctx, summary.RunID, symbol, rows); err != nil {
			summary.ArchiveErrors++
			log.WithError(err).Warn("archive upload failed")
		}
	}

	metrics.EmitMetric(o.log, "pipeline", "symbol_rows", float64(written), logger.Fields{"symbol": symbol})
	logger.LogPerformanceEntry(log, "pipeline", "process_symbol", time.Since(start), logger.Fields{"symbol": symbol})
}

func (o *Orchestrator) fail(summary *models.RunSummary, log *logger.Entry, symbol string, kind models.FailureKind, reason string) {
	summary.RecordFailure(symbol, kind, reason)
	log.WithFields(logger.Fields{"kind": string(kind), "reason": reason}).Error("symbol failed")
	metrics.EmitMetric(o.log, "pipeline", "symbol_failed", 1, logger.Fields{"symbol": symbol, "kind": string(kind)})
}

func (o *Orchestrator) cancelRemaining(summary *models.RunSummary, symbols []string, cause error) {
	for _, s := range symbols {
		summary.RecordFailure(s, models.FailureCancelled, cause.Error())
	}
	o.log.WithComponent("pipeline").WithFields(logger.Fields{
		"run_id":    summary.RunID,
		"cancelled": symbols,
	}).Warn("run cancelled before all symbols were processed")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
