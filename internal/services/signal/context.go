// Package signal turns candles into per-timeframe decision contexts and
// applies the gating, aggregation and decision rules on top of them.
package signal

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/services/indicators"
)

const (
	emaFast      = 20
	emaSlow      = 50
	rsiPeriod    = 14
	adxPeriod    = 14
	atrPeriod    = 14
	donchianLen  = 20
	residWindow  = 50
	residMinObs  = 20
	vrWindow     = 14
	vrSmoothSpan = 5
	tiny         = 1e-9
)

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// DeriveContext computes the raw channels, indicators and regime for one
// timeframe. behavior may be nil, in which case the behavior bias is zero.
func DeriveContext(candles []models.Candle, tf string, params models.StrategyParams, behavior *models.BehaviorResult) (*models.DecisionContext, error) {
	if len(candles) == 0 {
		return nil, domrepo.ErrNoData
	}
	closes := indicators.SafeSeries(models.Closes(candles))
	highs := models.Highs(candles)
	lows := models.Lows(candles)

	ema20 := indicators.EMA(closes, emaFast)
	ema50 := indicators.EMA(closes, emaSlow)
	rsi := indicators.RSI(closes, rsiPeriod)
	adx := indicators.ADX(highs, lows, closes, adxPeriod)
	atr := indicators.ATR(highs, lows, closes, atrPeriod)
	vr := indicators.SmoothVolRatio(atr, vrWindow, vrSmoothSpan)

	last := len(closes) - 1
	price := closes[last]
	atrLast := finiteOr(atr[last], 0)

	dc := &models.DecisionContext{
		Timeframe: tf,
		Timestamp: time.Unix(candles[last].Time, 0).UTC(),
		Price:     price,
		ADX:       finiteOr(adx[last], 0),
		ATR:       atrLast,
		RSI:       finiteOr(rsi[last], 50),
		VolRatio:  indicators.LastOr(vr, 1),
	}

	dc.TrendRaw = finiteOr(math.Tanh((ema20[last]-ema50[last])/(tiny+atrLast)), 0)
	dc.MomentumRaw = (dc.RSI - 50) / 50
	dc.MeanRevRaw = meanReversion(closes, ema50)
	dc.BreakoutRaw = breakout(highs, lows, price)

	if behavior != nil {
		dc.Behavior = behavior
		dc.BehaviorBias = finiteOr(behavior.WhaleBias, 0)
	}

	dc.Regime, dc.RegimeReasons = ClassifyRegime(dc.TrendRaw, dc.ADX, dc.VolRatio, params.MinADXForTrend)
	return dc, nil
}

func meanReversion(closes, ema50 []float64) float64 {
	resid := make([]float64, len(closes))
	for i := range closes {
		resid[i] = closes[i] - ema50[i]
	}
	std := indicators.LastOr(indicators.RollingStd(resid, residWindow, residMinObs), 1)
	if std == 0 {
		std = 1
	}
	return finiteOr(-math.Tanh(resid[len(resid)-1]/(tiny+std)), 0)
}

func breakout(highs, lows []float64, price float64) float64 {
	upper, lower := indicators.Donchian(highs, lows, donchianLen)
	hi, lo := indicators.Last(upper), indicators.Last(lower)
	if math.IsNaN(hi) || math.IsNaN(lo) {
		return 0
	}
	mid := (hi + lo) / 2
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}
	return finiteOr(indicators.Clip((price-mid)/(rng+tiny), -1, 1), 0)
}

// ClassifyRegime labels the market from trend strength, ADX and the smoothed
// volatility ratio.
func ClassifyRegime(trendRaw, adx, vr, minADX float64) (models.Regime, []string) {
	regime := models.RegimeLow
	switch {
	case math.Abs(trendRaw) > 0.6 && adx >= minADX && vr >= 1.1:
		regime = models.RegimeHigh
	case vr >= 0.9:
		regime = models.RegimeNeutral
	}
	reasons := []string{
		"regime=" + string(regime),
		"|trend|=" + fmt3(math.Abs(trendRaw)),
		"adx=" + decimal.NewFromFloat(finiteOr(adx, 0)).StringFixed(1),
		"vr=" + decimal.NewFromFloat(finiteOr(vr, 1)).StringFixed(2),
	}
	return regime, reasons
}

// OverrideLastPrice returns a copy of candles whose latest bar reflects a
// live price: close is replaced and the high/low envelope widened.
func OverrideLastPrice(candles []models.Candle, price float64) []models.Candle {
	if len(candles) == 0 || !(price > 0) || math.IsInf(price, 0) {
		return candles
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	c := &out[len(out)-1]
	c.Close = price
	c.High = math.Max(c.High, price)
	c.Low = math.Min(c.Low, price)
	return out
}
