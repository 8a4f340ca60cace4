package processor

import (
	"strings"

	appconfig "priceflow/config"
)

// FieldMap names the provider labels of each price field inside one
// time-series entry. An empty AdjustedClose label means the series has none.
type FieldMap struct {
	Open          string
	High          string
	Low           string
	Close         string
	AdjustedClose string
	Volume        string
}

var (
	IntradayFields = FieldMap{
		Open:   "1. open",
		High:   "2. high",
		Low:    "3. low",
		Close:  "4. close",
		Volume: "5. volume",
	}

	AdjustedFields = FieldMap{
		Open:          "1. open",
		High:          "2. high",
		Low:           "3. low",
		Close:         "4. close",
		AdjustedClose: "5. adjusted close",
		Volume:        "6. volume",
	}
)

// FieldMapFor returns the default labels for a series function.
func FieldMapFor(function string) FieldMap {
	if strings.HasSuffix(strings.ToUpper(function), "_ADJUSTED") {
		return AdjustedFields
	}
	return IntradayFields
}

// FieldMapFromConfig starts from the function defaults and applies every
// non-empty label override.
func FieldMapFromConfig(p appconfig.ProviderConfig) FieldMap {
	m := FieldMapFor(p.Function)
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&m.Open, p.Fields.Open)
	override(&m.High, p.Fields.High)
	override(&m.Low, p.Fields.Low)
	override(&m.Close, p.Fields.Close)
	override(&m.AdjustedClose, p.Fields.AdjustedClose)
	override(&m.Volume, p.Fields.Volume)
	return m
}
