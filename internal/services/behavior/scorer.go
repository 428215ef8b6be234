// Package behavior derives order-flow proxies (volume spikes, VSA, relative
// volume, whale bias) from a candle window and folds them into one score.
package behavior

import (
	"fmt"

	"SmartTrader/internal/domain/models"
)

const minCandles = 20

var weights = struct{ volume, volatility, momentum, vsa, whale float64 }{0.20, 0.25, 0.20, 0.20, 0.15}

// Score computes the combined behavior result for candles ordered oldest first.
// Candles with a non-finite price are dropped and a non-finite volume counts
// as no volume.
func Score(candles []models.Candle) models.BehaviorResult {
	candles = finiteCandles(candles)
	if len(candles) < minCandles {
		return models.BehaviorResult{
			VSASignal:      models.VSANoData,
			RVOL:           1,
			WhaleDirection: models.WhaleNeutral,
			Explanations:   []string{"Insufficient market data"},
		}
	}

	volumes := models.Volumes(candles)
	var prices []float64
	for _, c := range candles {
		if c.Close != 0 {
			prices = append(prices, c.Close)
		}
	}
	ranges := make([]float64, 0, len(candles)-1)
	for _, c := range candles[1:] {
		ranges = append(ranges, c.Spread())
	}

	// Insufficient sub-scores count as zero.
	volScore, _ := VolumeSpike(volumes)
	shiftScore, _ := VolatilityShift(ranges)
	momScore, _ := MomentumBurst(prices)
	vsaScore, vsaSignal := VSA(candles)
	rvol, _ := RVOL(candles)
	bias, direction := WhaleBias(candles)

	supply := vsaSignal == models.VSADistribution ||
		(vsaSignal == models.VSAAbsorption && bias < -0.2)

	whaleScore := 50 + bias*25
	res := models.BehaviorResult{
		Score: weights.volume*volScore +
			weights.volatility*shiftScore +
			weights.momentum*momScore +
			weights.vsa*vsaScore +
			weights.whale*whaleScore,
		VolumeSpike:            volScore,
		VolatilityShift:        shiftScore,
		MomentumBurst:          momScore,
		VSAScore:               vsaScore,
		VSASignal:              vsaSignal,
		RVOL:                   rvol,
		WhaleBias:              bias,
		WhaleDirection:         direction,
		SupplyOvercomingDemand: supply,
	}
	res.Explanations = explain(res, volumes, ranges)
	return res
}

func finiteCandles(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) {
			continue
		}
		if !finite(c.Volume) || c.Volume < 0 {
			c.Volume = 0
		}
		out = append(out, c)
	}
	return out
}

func explain(r models.BehaviorResult, volumes, ranges []float64) []string {
	var out []string

	switch {
	case r.VolumeSpike > 60:
		ratio, _ := spikeRatio(volumes, volumeWindow)
		out = append(out, fmt.Sprintf("Volume increased %.1fx above average (spike score: %.1f)", ratio, r.VolumeSpike))
	case r.VolumeSpike < 40:
		out = append(out, fmt.Sprintf("Volume below average (spike score: %.1f)", r.VolumeSpike))
	}

	switch {
	case r.VolatilityShift > 60:
		ratio, _ := spikeRatio(ranges, volatilityWindow)
		out = append(out, fmt.Sprintf("ATR expansion indicates high volatility (shift score: %.1f, ratio: %.2fx)", r.VolatilityShift, ratio))
	case r.VolatilityShift < 40:
		out = append(out, fmt.Sprintf("Low volatility environment (shift score: %.1f)", r.VolatilityShift))
	}

	switch {
	case r.MomentumBurst > 60:
		out = append(out, fmt.Sprintf("Strong price impulse detected (momentum score: %.1f)", r.MomentumBurst))
	case r.MomentumBurst < 40:
		out = append(out, fmt.Sprintf("Weak momentum (momentum score: %.1f)", r.MomentumBurst))
	}

	switch r.VSASignal {
	case models.VSAAbsorption:
		out = append(out, fmt.Sprintf("VSA: Absorption detected (score: %.1f) - High volume, small spread = Whale activity", r.VSAScore))
	case models.VSADistribution:
		out = append(out, fmt.Sprintf("VSA: Distribution detected (score: %.1f) - Supply overcoming demand", r.VSAScore))
	}

	switch {
	case r.RVOL > 1.5:
		out = append(out, fmt.Sprintf("RVOL: %.2fx - Volume significantly above same-time-of-day average", r.RVOL))
	case r.RVOL < 0.7:
		out = append(out, fmt.Sprintf("RVOL: %.2fx - Volume below same-time-of-day average", r.RVOL))
	}

	switch r.WhaleDirection {
	case models.WhaleBullish:
		out = append(out, fmt.Sprintf("Whale Bias: %+.2f (BULLISH) - Institutional buy pressure", r.WhaleBias))
	case models.WhaleBearish:
		out = append(out, fmt.Sprintf("Whale Bias: %+.2f (BEARISH) - Institutional sell pressure", r.WhaleBias))
	}

	if r.SupplyOvercomingDemand {
		out = append(out, "Supply overcoming demand - Potential reversal signal")
	}
	if len(out) == 0 {
		out = append(out, "Market behavior within normal ranges")
	}
	return out
}
