package validator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"priceflow/logger"
)

// ErrNoFreshData means none of the requested symbols has rows in the window.
var ErrNoFreshData = errors.New("no fresh data for any symbol")

// Counter answers how many rows each symbol has since a point in time.
type Counter interface {
	CountSince(ctx context.Context, symbols []string, since time.Time) (map[string]int64, error)
}

type Freshness struct {
	counter Counter
	now     func() time.Time
	log     *logger.Log
}

func NewFreshness(counter Counter) *Freshness {
	return &Freshness{
		counter: counter,
		now:     time.Now,
		log:     logger.GetLogger(),
	}
}

// Validate counts rows per symbol in the trailing window with one query.
// Every symbol appears in the result. It fails with ErrNoFreshData only when
// all counts are zero; a partial shortfall is logged and tolerated.
func (f *Freshness) Validate(ctx context.Context, symbols []string, window time.Duration) (map[string]int64, error) {
	log := f.log.WithComponent("freshness")
	since := f.now().UTC().Add(-window)

	raw, err := f.counter.CountSince(ctx, symbols, since)
	if err != nil {
		return nil, fmt.Errorf("freshness query: %w", err)
	}

	counts := make(map[string]int64, len(symbols))
	var fresh int
	var stale []string
	for _, sym := range symbols {
		n := raw[sym]
		counts[sym] = n
		if n > 0 {
			fresh++
		} else {
			stale = append(stale, sym)
		}
	}
	sort.Strings(stale)

	fields := logger.Fields{
		"window": window.String(),
		"counts": counts,
		"fresh":  fresh,
	}
	if fresh == 0 {
		log.WithFields(fields).Error("no symbol has fresh rows")
		return counts, fmt.Errorf("%w in the last %s", ErrNoFreshData, window)
	}
	if len(stale) > 0 {
		log.WithFields(fields).WithField("stale", stale).Warn("some symbols have no fresh rows")
	} else {
		log.WithFields(fields).Info("freshness check passed")
	}
	return counts, nil
}
