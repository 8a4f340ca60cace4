package processor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "priceflow/config"
	"priceflow/models"
)

func intradayEntry(closePrice string) map[string]string {
	return map[string]string{
		"1. open":   "10.0",
		"2. high":   "11.5",
		"3. low":    "9.5",
		"4. close":  closePrice,
		"5. volume": "1200",
	}
}

func TestNormalizeIntraday(t *testing.T) {
	payload := models.RawQuotePayload{
		"2024-01-02 16:00:00": intradayEntry("10.75"),
		"2024-01-02 15:00:00": intradayEntry("10.50"),
	}

	rows, stats := Normalize("AAPL", payload, IntradayFields)
	require.Len(t, rows, 2)
	assert.Equal(t, Stats{Parsed: 2}, stats)

	first := rows[0]
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 10.0, first.Open)
	assert.Equal(t, 11.5, first.High)
	assert.Equal(t, 9.5, first.Low)
	assert.Equal(t, 10.50, first.Close)
	assert.Equal(t, int64(1200), first.Volume)
	assert.Nil(t, first.AdjustedClose)
	assert.Equal(t, time.UTC, first.Timestamp.Location())

	assert.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
}

func TestNormalizeSkipsNonNumericEntries(t *testing.T) {
	payload := models.RawQuotePayload{}
	for h := 0; h < 10; h++ {
		closePrice := "100.0"
		if h == 3 || h == 7 {
			closePrice = "n/a"
		}
		payload[fmt.Sprintf("2024-01-02 %02d:00:00", h)] = intradayEntry(closePrice)
	}

	rows, stats := Normalize("MSFT", payload, IntradayFields)
	assert.Len(t, rows, 8)
	assert.Equal(t, Stats{Parsed: 8, Skipped: 2}, stats)
	for _, r := range rows {
		assert.NotEqual(t, 3, r.Timestamp.Hour())
		assert.NotEqual(t, 7, r.Timestamp.Hour())
	}
}

func TestNormalizeMissingFieldsReadAsZero(t *testing.T) {
	payload := models.RawQuotePayload{
		"2024-01-02 10:00:00": {"4. close": "5", "5. volume": ""},
	}

	rows, stats := Normalize("IBM", payload, IntradayFields)
	require.Len(t, rows, 1)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, 0.0, rows[0].Open)
	assert.Equal(t, 5.0, rows[0].Close)
	assert.Equal(t, int64(0), rows[0].Volume)
}

func TestNormalizeDailyAdjusted(t *testing.T) {
	payload := models.RawQuotePayload{
		"2024-01-02": {
			"1. open":           "1",
			"2. high":           "2",
			"3. low":            "0.5",
			"4. close":          "1.5",
			"5. adjusted close": "1.45",
			"6. volume":         "1234.0",
		},
		"2024-01-03": {
			"4. close":  "1.6",
			"6. volume": "10",
		},
	}

	rows, _ := Normalize("TSLA", payload, AdjustedFields)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rows[0].Timestamp)
	require.NotNil(t, rows[0].AdjustedClose)
	assert.Equal(t, 1.45, *rows[0].AdjustedClose)
	assert.Equal(t, int64(1234), rows[0].Volume)
	assert.Nil(t, rows[1].AdjustedClose)
}

func TestNormalizeBadTimestampSkipped(t *testing.T) {
	payload := models.RawQuotePayload{
		"yesterday":           intradayEntry("1"),
		"2024-01-02 10:00:00": intradayEntry("1"),
	}

	rows, stats := Normalize("X", payload, IntradayFields)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, stats.Skipped)
}

func TestNormalizeEmptyPayload(t *testing.T) {
	rows, stats := Normalize("X", nil, IntradayFields)
	assert.Empty(t, rows)
	assert.Equal(t, Stats{}, stats)
}

func TestNormalizeRejectsNonFiniteNumbers(t *testing.T) {
	payload := models.RawQuotePayload{
		"2024-01-02 10:00:00": intradayEntry("NaN"),
	}
	rows, stats := Normalize("X", payload, IntradayFields)
	assert.Empty(t, rows)
	assert.Equal(t, 1, stats.Skipped)
}

func TestNormalizeSkipsOutOfRangeVolume(t *testing.T) {
	entry := func(volume string) map[string]string {
		e := intradayEntry("1")
		e["5. volume"] = volume
		return e
	}
	payload := models.RawQuotePayload{
		"2024-01-02 10:00:00": entry("1e20"),
		"2024-01-02 11:00:00": entry("-5"),
		"2024-01-02 12:00:00": entry("9223372036854775808"),
		"2024-01-02 13:00:00": entry("9007199254740992"),
	}
	rows, stats := Normalize("AAPL", payload, IntradayFields)
	assert.Equal(t, Stats{Parsed: 1, Skipped: 3}, stats)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9007199254740992), rows[0].Volume)
}

func TestFieldMapFromConfig(t *testing.T) {
	assert.Equal(t, IntradayFields, FieldMapFor("TIME_SERIES_INTRADAY"))
	assert.Equal(t, AdjustedFields, FieldMapFor("time_series_daily_adjusted"))

	m := FieldMapFromConfig(appconfig.ProviderConfig{
		Function: "TIME_SERIES_DAILY",
		Fields:   appconfig.FieldsConfig{Close: "4. last"},
	})
	assert.Equal(t, "4. last", m.Close)
	assert.Equal(t, "1. open", m.Open)
	assert.Empty(t, m.AdjustedClose)
}

func TestNormalizerUsesConfiguredFields(t *testing.T) {
	n := NewNormalizer(appconfig.ProviderConfig{Function: "TIME_SERIES_DAILY_ADJUSTED"})
	assert.Equal(t, AdjustedFields, n.Fields())

	rows, stats := n.Normalize("AAPL", models.RawQuotePayload{
		"2024-01-02": {"4. close": "3", "5. adjusted close": "2.9"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, stats.Parsed)
	require.NotNil(t, rows[0].AdjustedClose)
}
