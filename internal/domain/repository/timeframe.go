package repository

import "SmartTrader/pkg/util"

// Timeframe is a UDF-style candle resolution: minutes as a string, or "D".
type Timeframe string

const (
	TF1   Timeframe = "1"
	TF5   Timeframe = "5"
	TF15  Timeframe = "15"
	TF30  Timeframe = "30"
	TF60  Timeframe = "60"
	TF240 Timeframe = "240"
	TFDay Timeframe = "D"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1, TF5, TF15, TF30, TF60, TF240, TFDay:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default primary timeframe.
func DefaultTimeframe() Timeframe { return TF240 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	if s == "1D" || s == "d" {
		return TFDay
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Minutes returns the candle length in minutes; unknown values count as 60.
func (tf Timeframe) Minutes() int {
	if m, ok := util.TimeframeMinutes(string(tf)); ok {
		return m
	}
	return 60
}
