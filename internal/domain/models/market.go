package models

import (
	"math"
	"strings"
)

// Candle is one OHLCV bar. Time is the bar open in epoch seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Normalize widens high/low so that they bracket open and close.
func (c Candle) Normalize() Candle {
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	return c
}

// Spread returns high minus low.
func (c Candle) Spread() float64 { return c.High - c.Low }

type Ticker struct {
	Last  float64 `json:"last"`
	Close float64 `json:"close"`
}

// Price returns the last traded price, falling back to close.
func (t Ticker) Price() float64 {
	if t.Last > 0 {
		return t.Last
	}
	return t.Close
}

// ProviderAttempt records the outcome of one provider call inside a fallback chain.
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Err      string `json:"error,omitempty"`
}

// MarketDataResponse carries candles or a ticker plus provenance.
// Confidence is 1.0 for the first provider and drops 0.2 per fallback step.
type MarketDataResponse struct {
	Candles      []Candle
	Ticker       *Ticker
	Provider     string
	Confidence   float64
	FallbackUsed bool
	Err          error
	Attempts     []ProviderAttempt
}

// OK reports whether the response carries usable data.
func (r MarketDataResponse) OK() bool {
	return r.Err == nil && (len(r.Candles) > 0 || r.Ticker != nil)
}

// Closes extracts close prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// PriceTick is a single streamed price update.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // epoch ms
	Provider  string  `json:"provider"`
}

// AssetID maps an exchange symbol such as BTCTMN or ETHUSDT to the asset id
// used by USD aggregators. Unknown symbols fall back to bitcoin.
func AssetID(symbol string) string {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "BTC"):
		return "bitcoin"
	case strings.Contains(s, "ETH"):
		return "ethereum"
	default:
		return "bitcoin"
	}
}
