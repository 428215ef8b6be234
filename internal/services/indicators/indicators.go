package indicators

import "math"

// EMA with alpha = 2/(period+1), seeded with the first value.
func EMA(series []float64, period int) []float64 {
	return ewm(SafeSeries(series), spanAlpha(period))
}

// RSI smooths gains and losses with an EMA of span period.
// The first bar has no change and reports a neutral 50.
func RSI(series []float64, period int) []float64 {
	s := SafeSeries(series)
	n := len(s)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	up := make([]float64, n)
	down := make([]float64, n)
	up[0], down[0] = math.NaN(), math.NaN()
	for i := 1; i < n; i++ {
		d := s[i] - s[i-1]
		up[i] = math.Max(d, 0)
		down[i] = math.Max(-d, 0)
	}
	alpha := spanAlpha(period)
	ru := ewm(up, alpha)
	rd := ewm(down, alpha)
	out[0] = 50
	for i := 1; i < n; i++ {
		rs := ru[i] / (rd[i] + eps)
		out[i] = Clip(100-100/(1+rs), 0, 100)
	}
	return out
}

// ATR is the Wilder-smoothed true range, floored at zero.
func ATR(high, low, close []float64, period int) []float64 {
	h, l, c := SafeSeries(high), SafeSeries(low), SafeSeries(close)
	atr := ewm(trueRange(h, l, c), wilderAlpha(period))
	for i, v := range atr {
		atr[i] = math.Max(v, 0)
	}
	return atr
}

// ADX follows Wilder: only the dominant directional move of each bar counts.
func ADX(high, low, close []float64, period int) []float64 {
	h, l, c := SafeSeries(high), SafeSeries(low), SafeSeries(close)
	n := len(h)
	plus := make([]float64, n)
	minus := make([]float64, n)
	for i := 1; i < n; i++ {
		p := math.Max(h[i]-h[i-1], 0)
		m := math.Max(-(l[i] - l[i-1]), 0)
		if p < m {
			p = 0
		}
		if !(m > p) {
			m = 0
		}
		plus[i], minus[i] = p, m
	}
	alpha := wilderAlpha(period)
	atr := ewm(trueRange(h, l, c), alpha)
	ps := ewm(plus, alpha)
	ms := ewm(minus, alpha)
	dx := make([]float64, n)
	for i := range dx {
		pdi := 100 * ps[i] / (atr[i] + eps)
		mdi := 100 * ms[i] / (atr[i] + eps)
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi + eps)
	}
	adx := ewm(dx, alpha)
	for i, v := range adx {
		adx[i] = Clip(v, 0, 100)
	}
	return adx
}

// Donchian returns rolling max(high) and min(low). Points with fewer than
// max(1, period/2) observations are NaN.
func Donchian(high, low []float64, period int) (upper, lower []float64) {
	h, l := SafeSeries(high), SafeSeries(low)
	if period < 1 {
		period = 1
	}
	minp := minPeriods(period)
	upper = make([]float64, len(h))
	lower = make([]float64, len(l))
	for i := range h {
		start := max(0, i-period+1)
		if i-start+1 < minp {
			upper[i], lower[i] = math.NaN(), math.NaN()
			continue
		}
		hi, lo := h[start], l[start]
		for j := start + 1; j <= i; j++ {
			hi = math.Max(hi, h[j])
			lo = math.Min(lo, l[j])
		}
		upper[i], lower[i] = hi, lo
	}
	return upper, lower
}

// SmoothVolRatio is ATR over its rolling mean, neutral (1.0) where the mean
// is unavailable or ~0, clipped to [0.1, 10], then EMA-smoothed.
func SmoothVolRatio(atr []float64, window, span int) []float64 {
	a := SafeSeries(atr)
	mean := RollingMean(a, window, minPeriods(window))
	vr := make([]float64, len(a))
	for i := range a {
		den := mean[i]
		r := 1.0
		if finite(den) && math.Abs(den) > eps {
			r = a[i] / den
			if !finite(r) {
				r = 1.0
			}
		}
		vr[i] = Clip(r, 0.1, 10)
	}
	return ewm(vr, spanAlpha(span))
}

// RollingMean over a trailing window; NaN where fewer than minp points exist.
func RollingMean(s []float64, window, minp int) []float64 {
	out := make([]float64, len(s))
	if window < 1 {
		window = 1
	}
	sum := 0.0
	for i, v := range s {
		sum += v
		if i >= window {
			sum -= s[i-window]
		}
		cnt := min(i+1, window)
		if cnt < minp {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(cnt)
	}
	return out
}

// RollingStd is the sample standard deviation (ddof=1) over a trailing window.
func RollingStd(s []float64, window, minp int) []float64 {
	out := make([]float64, len(s))
	if window < 1 {
		window = 1
	}
	for i := range s {
		start := max(0, i-window+1)
		cnt := i - start + 1
		if cnt < minp || cnt < 2 {
			out[i] = math.NaN()
			continue
		}
		mean := 0.0
		for _, v := range s[start : i+1] {
			mean += v
		}
		mean /= float64(cnt)
		ss := 0.0
		for _, v := range s[start : i+1] {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(cnt-1))
	}
	return out
}

// Returns computes simple returns p[i]/p[i-1]-1, skipping non-positive bases.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}
