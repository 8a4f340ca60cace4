package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appconfig "priceflow/config"
	"priceflow/internal/pipeline/mocks"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/processor"
)

type harness struct {
	fetcher    *mocks.MockQuoteFetcher
	normalizer *mocks.MockRowNormalizer
	writer     *mocks.MockPriceWriter
	pauses     []time.Duration
	orch       *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		fetcher:    mocks.NewMockQuoteFetcher(ctrl),
		normalizer: mocks.NewMockRowNormalizer(ctrl),
		writer:     mocks.NewMockPriceWriter(ctrl),
	}

	cfg := appconfig.Config{
		Provider: appconfig.ProviderConfig{APIKey: "demo"},
		Pipeline: appconfig.PipelineConfig{SymbolPause: 12 * time.Second},
	}
	h.orch = New(cfg, h.fetcher, h.normalizer, h.writer, opts...)
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.pauses = append(h.pauses, d)
		return ctx.Err()
	}
	h.orch.newRunID = func() string { return "run-test" }

	log := logger.Logger()
	log.SetOutput(io.Discard)
	h.orch.log = log
	return h
}

func payloadFor(symbol string) models.RawQuotePayload {
	return models.RawQuotePayload{
		"2024-01-02 10:00:00": {"4. close": "1"},
		"2024-01-02 11:00:00": {"4. close": symbol},
	}
}

func rowsFor(symbol string, n int) []models.PricePoint {
	rows := make([]models.PricePoint, n)
	for i := range rows {
		rows[i] = models.PricePoint{Symbol: symbol, Timestamp: time.Date(2024, 1, 2, i, 0, 0, 0, time.UTC)}
	}
	return rows
}

func (h *harness) expectSuccess(symbol string, rows int) {
	payload := payloadFor(symbol)
	points := rowsFor(symbol, rows)
	h.fetcher.EXPECT().Fetch(gomock.Any(), symbol).Return(models.FetchOutcome{Kind: models.OutcomeSuccess, Payload: payload, Attempts: 1})
	h.normalizer.EXPECT().Normalize(symbol, payload).Return(points, processor.Stats{Parsed: rows})
	h.writer.EXPECT().Upsert(gomock.Any(), symbol, points).Return(rows, nil)
}

func TestRunIsolatesFailingSymbol(t *testing.T) {
	h := newHarness(t)

	gomock.InOrder(
		h.fetcher.EXPECT().Fetch(gomock.Any(), "A").Return(models.Success(payloadFor("A"))),
		h.fetcher.EXPECT().Fetch(gomock.Any(), "B").Return(models.FetchOutcome{Kind: models.OutcomeTransportFailure, Message: "connection reset", Attempts: 3}),
		h.fetcher.EXPECT().Fetch(gomock.Any(), "C").Return(models.Success(payloadFor("C"))),
	)
	h.normalizer.EXPECT().Normalize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(symbol string, _ models.RawQuotePayload) ([]models.PricePoint, processor.Stats) {
			return rowsFor(symbol, 2), processor.Stats{Parsed: 2, Skipped: 1}
		}).Times(2)
	h.writer.EXPECT().Upsert(gomock.Any(), "A", gomock.Len(2)).Return(2, nil)
	h.writer.EXPECT().Upsert(gomock.Any(), "C", gomock.Len(2)).Return(2, nil)

	summary, err := h.orch.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, "run-test", summary.RunID)
	assert.Equal(t, []string{"A", "C"}, summary.SucceededSymbols())
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, models.SymbolFailure{Symbol: "B", Kind: models.FailureTransport, Reason: "connection reset"}, summary.Failed[0])
	assert.Equal(t, 4, summary.TotalRows)
	assert.Equal(t, 2, summary.EntriesSkipped)
	assert.True(t, summary.HasFailures())
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestRunPausesBetweenEverySymbol(t *testing.T) {
	h := newHarness(t)

	h.fetcher.EXPECT().Fetch(gomock.Any(), "A").Return(models.RateLimited("quota"))
	h.fetcher.EXPECT().Fetch(gomock.Any(), "B").Return(models.APIError("bad symbol"))
	h.fetcher.EXPECT().Fetch(gomock.Any(), "C").Return(models.Empty())

	summary, err := h.orch.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{12 * time.Second, 12 * time.Second}, h.pauses)
	assert.Equal(t, []string{"A", "B"}, summary.FailedSymbols())
	assert.Equal(t, models.FailureRateLimited, summary.Failed[0].Kind)
	assert.Equal(t, models.FailureAPIError, summary.Failed[1].Kind)
}

func TestRunEmptyOutcomeIsSuccessWithoutWrite(t *testing.T) {
	h := newHarness(t)

	h.fetcher.EXPECT().Fetch(gomock.Any(), "AAPL").Return(models.Empty())

	summary, err := h.orch.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []models.SymbolResult{{Symbol: "AAPL", Rows: 0}}, summary.Succeeded)
	assert.False(t, summary.HasFailures())
	assert.Empty(t, h.pauses)
}

func TestRunStoreFailureIsIsolated(t *testing.T) {
	h := newHarness(t)

	h.fetcher.EXPECT().Fetch(gomock.Any(), "A").Return(models.Success(payloadFor("A")))
	h.normalizer.EXPECT().Normalize("A", gomock.Any()).Return(rowsFor("A", 3), processor.Stats{Parsed: 3})
	h.writer.EXPECT().Upsert(gomock.Any(), "A", gomock.Any()).Return(0, errors.New("deadlock detected"))
	h.expectSuccess("B", 5)

	summary, err := h.orch.Run(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, models.FailureStoreWrite, summary.Failed[0].Kind)
	assert.Contains(t, summary.Failed[0].Reason, "deadlock")
	assert.Equal(t, []models.SymbolResult{{Symbol: "B", Rows: 5}}, summary.Succeeded)
}

func TestRunMalformedPayloadFails(t *testing.T) {
	h := newHarness(t)

	h.fetcher.EXPECT().Fetch(gomock.Any(), "A").Return(models.Malformed("decode body: invalid character"))

	summary, err := h.orch.Run(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, models.FailureMalformed, summary.Failed[0].Kind)
}

func TestRunPreflight(t *testing.T) {
	t.Run("no symbols", func(t *testing.T) {
		h := newHarness(t)
		summary, err := h.orch.Run(context.Background(), []string{" ", ""})
		assert.Nil(t, summary)
		assert.ErrorIs(t, err, ErrPreflight)
	})

	t.Run("missing api key", func(t *testing.T) {
		h := newHarness(t)
		h.orch.apiKey = ""
		_, err := h.orch.Run(context.Background(), []string{"AAPL"})
		assert.ErrorIs(t, err, ErrPreflight)
	})

	t.Run("missing collaborator", func(t *testing.T) {
		o := New(appconfig.Config{Provider: appconfig.ProviderConfig{APIKey: "k"}}, nil, nil, nil)
		_, err := o.Run(context.Background(), []string{"AAPL"})
		assert.ErrorIs(t, err, ErrPreflight)
	})
}

func TestRunNormalizesSymbols(t *testing.T) {
	h := newHarness(t)
	h.expectSuccess("AAPL", 1)

	summary, err := h.orch.Run(context.Background(), []string{" aapl", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, summary.SucceededSymbols())
	assert.Empty(t, h.pauses)
}

func TestRunCancelledDuringPause(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	h.expectSuccess("A", 1)

	summary, err := h.orch.Run(ctx, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, summary.SucceededSymbols())
	assert.Equal(t, []string{"B", "C"}, summary.FailedSymbols())
	for _, f := range summary.Failed {
		assert.Equal(t, models.FailureCancelled, f.Kind)
	}
}

func TestRunArchivesWrittenRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockArchiver(ctrl)
	h := newHarness(t, WithArchiver(archiver))

	h.expectSuccess("A", 2)
	h.expectSuccess("B", 3)
	archiver.EXPECT().Archive(gomock.Any(), "run-test", "A", gomock.Len(2)).Return(nil)
	archiver.EXPECT().Archive(gomock.Any(), "run-test", "B", gomock.Len(3)).Return(errors.New("access denied"))

	summary, err := h.orch.Run(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.False(t, summary.HasFailures())
	assert.Equal(t, 1, summary.ArchiveErrors)
	assert.Equal(t, 2, summary.FetchAttempts)
}
