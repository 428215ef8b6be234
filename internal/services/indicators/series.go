// Package indicators implements the technical indicators used by the signal
// engine on plain float64 series. Every function returns a series of the same
// length as its input; empty input yields an empty result.
package indicators

import "math"

const eps = 1e-12

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SafeSeries replaces non-finite values by forward fill, then back fill.
// A series with no finite value becomes all zeros.
func SafeSeries(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	last := math.NaN()
	for i, v := range out {
		if finite(v) {
			last = v
		} else {
			out[i] = last
		}
	}
	next := math.NaN()
	for i := len(out) - 1; i >= 0; i-- {
		if finite(out[i]) {
			next = out[i]
		} else {
			out[i] = next
		}
	}
	for i, v := range out {
		if !finite(v) {
			out[i] = 0
		}
	}
	return out
}

// ewm is an exponentially weighted mean with adjust=false semantics:
// the first finite value seeds the average, leading NaNs stay NaN.
func ewm(in []float64, alpha float64) []float64 {
	out := make([]float64, len(in))
	prev := math.NaN()
	for i, v := range in {
		switch {
		case !finite(v):
			out[i] = prev
		case math.IsNaN(prev):
			prev = v
			out[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}
	return out
}

func spanAlpha(span int) float64 {
	if span < 1 {
		span = 1
	}
	return 2 / (float64(span) + 1)
}

func wilderAlpha(period int) float64 {
	if period < 1 {
		period = 1
	}
	return 1 / float64(period)
}

// Clip bounds v to [lo, hi]. NaN passes through.
func Clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}

// Last returns the final element, or NaN for an empty series.
func Last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// LastOr returns the final element when finite, else def.
func LastOr(s []float64, def float64) float64 {
	v := Last(s)
	if !finite(v) {
		return def
	}
	return v
}

func trueRange(high, low, close []float64) []float64 {
	tr := make([]float64, len(high))
	for i := range high {
		r := high[i] - low[i]
		if i > 0 {
			pc := close[i-1]
			r = math.Max(r, math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
		}
		tr[i] = r
	}
	return tr
}

// minPeriods mirrors the partial-window rule shared by Donchian and VolRatio.
func minPeriods(window int) int {
	if window/2 < 1 {
		return 1
	}
	return window / 2
}
