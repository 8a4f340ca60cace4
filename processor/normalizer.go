package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Stats counts what happened to the entries of one payload.
type Stats struct {
	Parsed  int
	Skipped int
}

// Normalizer turns provider payloads into price points using a fixed
// field map.
type Normalizer struct {
	fields FieldMap
	log    *logger.Log
}

func NewNormalizer(cfg appconfig.ProviderConfig) *Normalizer {
	return &Normalizer{
		fields: FieldMapFromConfig(cfg),
		log:    logger.GetLogger(),
	}
}

func (n *Normalizer) Fields() FieldMap {
	return n.fields
}

// Normalize converts payload and logs a summary of skipped entries.
func (n *Normalizer) Normalize(symbol string, payload models.RawQuotePayload) ([]models.PricePoint, Stats) {
	rows, stats := Normalize(symbol, payload, n.fields)

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"symbol":  symbol,
		"parsed":  stats.Parsed,
		"skipped": stats.Skipped,
	})
	if stats.Skipped > 0 {
		log.Warn("skipped malformed entries")
	} else {
		log.Debug("normalized payload")
	}
	return rows, stats
}

// Normalize flattens a provider time series into price points sorted by
// timestamp. Entries with an unparseable timestamp or a present but
// non-numeric field are skipped; absent or empty fields read as zero.
func Normalize(symbol string, payload models.RawQuotePayload, fields FieldMap) ([]models.PricePoint, Stats) {
	var stats Stats
	rows := make([]models.PricePoint, 0, len(payload))

	for rawTS, values := range payload {
		p, err := parseEntry(symbol, rawTS, values, fields)
		if err != nil {
			stats.Skipped++
			logger.GetLogger().WithComponent("normalizer").WithFields(logger.Fields{
				"symbol":    symbol,
				"timestamp": rawTS,
			}).WithError(err).Debug("skipping entry")
			continue
		}
		rows = append(rows, p)
	}
	stats.Parsed = len(rows)

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows, stats
}

func parseEntry(symbol, rawTS string, values map[string]string, fields FieldMap) (models.PricePoint, error) {
	ts, err := parseTimestamp(rawTS)
	if err != nil {
		return models.PricePoint{}, err
	}

	p := models.PricePoint{Symbol: symbol, Timestamp: ts}
	for _, f := range []struct {
		label string
		dst   *float64
	}{
		{fields.Open, &p.Open},
		{fields.High, &p.High},
		{fields.Low, &p.Low},
		{fields.Close, &p.Close},
	} {
		if *f.dst, err = parseNumber(values, f.label); err != nil {
			return models.PricePoint{}, err
		}
	}

	volume, err := parseNumber(values, fields.Volume)
	if err != nil {
		return models.PricePoint{}, err
	}
	// MaxInt64 rounds up to 2^63 as a float64, which does not fit.
	if volume < 0 || volume >= math.MaxInt64 {
		return models.PricePoint{}, fmt.Errorf("field %q: volume %v out of range", fields.Volume, volume)
	}
	p.Volume = int64(volume)

	if fields.AdjustedClose != "" {
		if raw, ok := values[fields.AdjustedClose]; ok && strings.TrimSpace(raw) != "" {
			adj, err := parseNumber(values, fields.AdjustedClose)
			if err != nil {
				return models.PricePoint{}, err
			}
			p.AdjustedClose = &adj
		}
	}
	return p, nil
}

// parseTimestamp reads provider wall-clock time and tags it as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func parseNumber(values map[string]string, label string) (float64, error) {
	raw, ok := values[label]
	if !ok {
		return 0, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("field %q: non-numeric value %q", label, raw)
	}
	return v, nil
}
