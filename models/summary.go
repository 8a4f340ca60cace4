package models

import (
	"time"
)

// FailureKind classifies why a symbol failed within a run.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureAPIError    FailureKind = "api_error"
	FailureTransport   FailureKind = "transport_failure"
	FailureMalformed   FailureKind = "malformed"
	FailureStoreWrite  FailureKind = "store_write"
	FailureCancelled   FailureKind = "cancelled"
)

// FailureKindFor maps a non-success fetch outcome onto a failure kind.
func FailureKindFor(k OutcomeKind) FailureKind {
	switch k {
	case OutcomeRateLimited:
		return FailureRateLimited
	case OutcomeAPIError:
		return FailureAPIError
	case OutcomeMalformed:
		return FailureMalformed
	default:
		return FailureTransport
	}
}

type SymbolResult struct {
	Symbol string `json:"symbol"`
	Rows   int    `json:"rows"`
}

type SymbolFailure struct {
	Symbol string      `json:"symbol"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// RunSummary aggregates per-symbol outcomes of one pipeline run.
type RunSummary struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	TotalRows      int             `json:"total_rows"`
	FetchAttempts  int             `json:"fetch_attempts"`
	EntriesSkipped int             `json:"entries_skipped"`
	ArchiveErrors  int             `json:"archive_errors"`
	Succeeded      []SymbolResult  `json:"succeeded"`
	Failed         []SymbolFailure `json:"failed"`
}

func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Succeeded: []SymbolResult{},
		Failed:    []SymbolFailure{},
	}
}

func (s *RunSummary) RecordSuccess(symbol string, rows int) {
	s.Succeeded = append(s.Succeeded, SymbolResult{Symbol: symbol, Rows: rows})
	s.TotalRows += rows
}

func (s *RunSummary) RecordFailure(symbol string, kind FailureKind, reason string) {
	s.Failed = append(s.Failed, SymbolFailure{Symbol: symbol, Kind: kind, Reason: reason})
}

// HasFailures reports whether at least one symbol failed.
func (s *RunSummary) HasFailures() bool {
	return len(s.Failed) > 0
}

func (s *RunSummary) SucceededSymbols() []string {
	out := make([]string, 0, len(s.Succeeded))
	for _, r := range s.Succeeded {
		out = append(out, r.Symbol)
	}
	return out
}

func (s *RunSummary) FailedSymbols() []string {
	out := make([]string, 0, len(s.Failed))
	for _, f := range s.Failed {
		out = append(out, f.Symbol)
	}
	return out
}

// Duration is zero until the run has finished.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
