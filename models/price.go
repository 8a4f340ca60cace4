package models

import (
	"time"
)

// RawQuotePayload is the provider's time series for one symbol: timestamp
// string -> field label -> string value. It is consumed immediately and never
// persisted.
type RawQuotePayload map[string]map[string]string

// PricePoint is one OHLCV record for a symbol at a UTC instant.
// (Symbol, Timestamp) is the natural key in storage.
type PricePoint struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose *float64  `json:"adjusted_close,omitempty"`
	Volume        int64     `json:"volume"`
}

// Key returns the natural key of the point.
func (p PricePoint) Key() string {
	return p.Symbol + "|" + p.Timestamp.UTC().Format(time.RFC3339)
}
