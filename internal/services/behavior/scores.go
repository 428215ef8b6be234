package behavior

import (
	"math"
	"time"

	"SmartTrader/internal/domain/models"
)

const (
	volumeWindow     = 20
	volatilityWindow = 20
	momentumWindow   = 10
	vsaWindow        = 20
	rvolWindow       = 50
	whaleWindow      = 20
	minUsable        = 5
)

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// spikeRatio compares the last value of the trailing window to the mean of
// the values before it. ok is false when the window is short, all zero, or
// the baseline is non-positive. A non-finite value anywhere in the window
// makes the ratio unavailable.
func spikeRatio(history []float64, window int) (float64, bool) {
	if len(history) < window || window < 2 {
		return 0, false
	}
	w := history[len(history)-window:]
	allZero := true
	for _, v := range w {
		if !finite(v) {
			return 0, false
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return 0, false
	}
	base := mean(w[:len(w)-1])
	if base <= 0 {
		return 0, false
	}
	return w[len(w)-1] / base, true
}

// VolumeSpike scores the latest volume against the prior window: 1x -> 50, 3x -> 100.
func VolumeSpike(volumes []float64) (float64, bool) {
	r, ok := spikeRatio(volumes, volumeWindow)
	if !ok {
		return 0, false
	}
	return clamp(50+(r-1)*25, 0, 100), true
}

// VolatilityShift scores range expansion: 1x -> 50, 2x -> 100.
func VolatilityShift(ranges []float64) (float64, bool) {
	r, ok := spikeRatio(ranges, volatilityWindow)
	if !ok {
		return 0, false
	}
	return clamp(50+(r-1)*50, 0, 100), true
}

// MomentumBurst scores the latest absolute return against the mean absolute
// return of the preceding ones inside the window.
func MomentumBurst(prices []float64) (float64, bool) {
	if len(prices) < momentumWindow {
		return 0, false
	}
	p := prices[len(prices)-momentumWindow:]
	rets := make([]float64, 0, len(p)-1)
	for i := 1; i < len(p); i++ {
		if p[i-1] == 0 || !finite(p[i-1]) || !finite(p[i]) {
			return 0, false
		}
		rets = append(rets, math.Abs((p[i]-p[i-1])/p[i-1]))
	}
	if len(rets) < 2 {
		return 0, false
	}
	base := mean(rets[:len(rets)-1])
	if base <= 0 {
		return 0, false
	}
	r := rets[len(rets)-1] / base
	return clamp(50+(r-1)*25, 0, 100), true
}

// VSA compares effort (volume) to result (spread) for the latest candle.
func VSA(candles []models.Candle) (float64, models.VSASignal) {
	if len(candles) < vsaWindow {
		return 0, models.VSANoData
	}
	var vols, spreads []float64
	for _, c := range candles[len(candles)-vsaWindow:] {
		if s := c.Spread(); usableVolume(c.Volume) && finite(s) && s > 0 {
			vols = append(vols, c.Volume)
			spreads = append(spreads, s)
		}
	}
	if len(vols) < minUsable {
		return 0, models.VSANoData
	}
	n := len(vols)
	avgVol := mean(vols[:n-1])
	avgSpread := mean(spreads[:n-1])
	if avgVol <= 0 || avgSpread <= 0 {
		return 0, models.VSANormal
	}
	volRatio := vols[n-1] / avgVol
	spreadRatio := spreads[n-1] / avgSpread
	er := volRatio / (spreadRatio + 1e-6)
	score := clamp((er-1)*50, 0, 100)

	switch {
	case er > 2 && volRatio > 1.5:
		return score, models.VSAAbsorption
	case er < 0.5 && volRatio > 1.5:
		return score, models.VSADistribution
	default:
		return score, models.VSANormal
	}
}

// RVOL compares the latest volume with volumes seen within one UTC hour of
// the same time of day, falling back to the trailing window.
func RVOL(candles []models.Candle) (float64, bool) {
	if len(candles) < rvolWindow {
		return 1, false
	}
	usable := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if usableVolume(c.Volume) {
			usable = append(usable, c)
		}
	}
	if len(usable) < rvolWindow {
		return 1, false
	}
	cur := usable[len(usable)-1]
	hour := time.Unix(cur.Time, 0).UTC().Hour()

	var same []float64
	for _, c := range usable[:len(usable)-1] {
		h := time.Unix(c.Time, 0).UTC().Hour()
		if abs(h-hour) <= 1 {
			same = append(same, c.Volume)
		}
	}
	baseline := same
	if len(same) < minUsable {
		tail := usable[len(usable)-rvolWindow : len(usable)-1]
		baseline = make([]float64, 0, len(tail))
		for _, c := range tail {
			baseline = append(baseline, c.Volume)
		}
		if len(baseline) < minUsable {
			return 1, false
		}
	}
	avg := mean(baseline)
	if avg <= 0 {
		return 1, false
	}
	return clamp(cur.Volume/avg, 0.1, 10), true
}

func usableVolume(v float64) bool { return finite(v) && v > 0 }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// WhaleBias is a recency-weighted, volume-capped body delta squashed into [-1, 1].
func WhaleBias(candles []models.Candle) (float64, models.WhaleDirection) {
	if len(candles) < whaleWindow {
		return 0, models.WhaleNeutral
	}
	var deltas []float64
	for _, c := range candles[len(candles)-whaleWindow:] {
		if !usableVolume(c.Volume) || !finite(c.Open) || !finite(c.Close) {
			continue
		}
		change := (c.Close - c.Open) / (c.Open + 1e-6)
		deltas = append(deltas, change*math.Min(c.Volume/1e6, 1))
	}
	n := len(deltas)
	if n < minUsable {
		return 0, models.WhaleNeutral
	}
	var num, den float64
	for i, d := range deltas {
		w := math.Exp(-2 + 2*float64(i)/float64(n-1))
		num += w * d
		den += w
	}
	bias := math.Tanh(num / den * 10)
	if !finite(bias) {
		return 0, models.WhaleNeutral
	}
	switch {
	case bias > 0.3:
		return bias, models.WhaleBullish
	case bias < -0.3:
		return bias, models.WhaleBearish
	default:
		return bias, models.WhaleNeutral
	}
}
