package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"SmartTrader/internal/domain/models"
)

const (
	trendDampADX     = 0.4
	meanRevDamp      = 0.2
	meanRevConflict  = 0.40
	aggregateBound   = 2.0
	fastTrendMin     = 0.45
	fastBreakoutMin  = 0.35
	whaleBiasBlock   = 0.3
	minThreshold     = 0.01
	vetoFloor        = 0.05
	vetoConfirmShare = 0.35
)

// Engine applies gating, aggregation and the decision rules for one set of
// validated strategy parameters.
type Engine struct {
	params models.StrategyParams
}

func NewEngine(params models.StrategyParams) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new signal engine: %w", err)
	}
	return &Engine{params: params}, nil
}

func (e *Engine) Params() models.StrategyParams { return e.params }

// GateAndWeight fills the post-gate channels and the aggregate score.
func (e *Engine) GateAndWeight(dc *models.DecisionContext) {
	p := e.params

	trend, tOK := sanitize(dc.TrendRaw)
	mom, mOK := sanitize(dc.MomentumRaw)
	mr, rOK := sanitize(dc.MeanRevRaw)
	bo, bOK := sanitize(dc.BreakoutRaw)
	dc.TrendGated, dc.MomentumGated, dc.MeanRevGated, dc.BreakoutGated = !tOK, !mOK, !rOK, !bOK

	adx := finiteOr(dc.ADX, 0)
	if adx < p.MinADXForTrend {
		trend *= trendDampADX
		dc.TrendGated = true
		dc.AddReasonf("Trend damped x%.2f (ADX=%.1f < %.1f)", trendDampADX, adx, p.MinADXForTrend)
	}

	if (dc.TrendRaw > 0 && mr < -meanRevConflict) || (dc.TrendRaw < 0 && mr > meanRevConflict) {
		mr *= meanRevDamp
		dc.MeanRevGated = true
		dc.AddReasonf("Trend/MeanRev conflict: trend_raw=%.3f meanrev_raw=%.3f, meanrev x%.2f",
			dc.TrendRaw, dc.MeanRevRaw, meanRevDamp)
	}

	dc.Trend, dc.Momentum, dc.MeanRev, dc.Breakout = trend, mom, mr, bo

	w := regimeWeights(p.Weights.Normalized(), dc.Regime).Normalized()
	sum := w.Trend*trend + w.Momentum*mom + w.MeanRev*mr + w.Breakout*bo + w.Behavior*finiteOr(dc.BehaviorBias, 0)

	scale := finiteOr(p.RegimeScale.For(dc.Regime), 1)
	agg := finiteOr(sum*scale, 0)
	if math.Abs(agg) > aggregateBound {
		clamped := math.Copysign(aggregateBound, agg)
		dc.AddReasonf("Aggregate clamped %.3f -> %.3f", agg, clamped)
		agg = clamped
	}
	dc.Aggregate = agg
	dc.AddReasonf("Aggregate=%.3f (regime=%s, scale=%.2f)", agg, dc.Regime, scale)
}

func sanitize(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func regimeWeights(w models.Weights, regime models.Regime) models.Weights {
	switch regime {
	case models.RegimeLow:
		w.MeanRev *= 1.4
		w.Trend *= 0.7
		w.Breakout *= 0.8
	case models.RegimeHigh:
		w.Breakout *= 1.3
		w.Behavior *= 1.2
		w.MeanRev *= 0.6
		w.Trend *= 1.1
	}
	return w
}

// Thresholds returns the effective buy and sell thresholds for a volatility
// ratio. Higher volatility lowers both.
func (e *Engine) Thresholds(vr float64) (buy, sell float64) {
	p := e.params
	shift := clampAbs((finiteOr(vr, 1)-1)*p.VRAdaptK, p.VRAdaptClamp)
	buy = math.Max(minThreshold, p.BuyThreshold-p.DecisionBuffer-shift)
	sell = math.Max(minThreshold, p.SellThreshold-p.DecisionBuffer-shift)
	return buy, sell
}

func clampAbs(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

// Decide evaluates the whale gate, the impulse fast path, the volatility
// guard and the threshold path in that order. confirm may be nil.
func (e *Engine) Decide(primary, confirm *models.DecisionContext) models.Decision {
	p := e.params
	buyTh, sellTh := e.Thresholds(primary.VolRatio)
	d := models.Decision{Action: models.ActionHold, BuyThreshold: buyTh, SellThreshold: sellTh}
	d.Vetoed = e.mtfVeto(primary, confirm)

	s := primary.Aggregate
	vr := finiteOr(primary.VolRatio, 1)

	if reason, blocked := whaleGate(primary); blocked {
		primary.AddReason(reason)
		return d
	}

	trend := primary.Trend
	if math.Abs(trend) >= fastTrendMin &&
		primary.Breakout*sign(trend) >= fastBreakoutMin &&
		finiteOr(primary.ADX, 0) >= p.MinADXForTrend &&
		!d.Vetoed &&
		(!p.ImpulseOnlyHigh || primary.Regime == models.RegimeHigh) {
		side := models.SideLong
		d.Action = models.ActionBuy
		if trend < 0 {
			side = models.SideShort
			d.Action = models.ActionSell
		}
		d.Proposed = e.propose(side, primary)
		primary.AddReasonf("Fast path %s: trend=%.3f breakout=%.3f adx=%.1f regime=%s",
			d.Action, trend, primary.Breakout, primary.ADX, primary.Regime)
		return d
	}

	if vr < p.MinVRTrade {
		primary.AddReasonf("Vol guard: vr=%.2f < %.2f, threshold entries suppressed", vr, p.MinVRTrade)
		return d
	}

	switch {
	case s >= buyTh && !d.Vetoed:
		d.Action = models.ActionBuy
		d.Proposed = e.propose(models.SideLong, primary)
		primary.AddReasonf("Decision BUY: s=%.3f >= %.3f", s, buyTh)
	case s <= -sellTh && !d.Vetoed:
		d.Action = models.ActionSell
		d.Proposed = e.propose(models.SideShort, primary)
		primary.AddReasonf("Decision SELL: s=%.3f <= %.3f", s, -sellTh)
	default:
		primary.AddReasonf("HOLD: s=%.3f, thresholds=(%.3f, %.3f)", s, buyTh, -sellTh)
	}
	return d
}

func (e *Engine) mtfVeto(primary, confirm *models.DecisionContext) bool {
	p := e.params
	if !p.RequireMTFAgreement {
		primary.AddReason("MTF agreement not required")
		return false
	}
	if confirm == nil {
		primary.AddReason("MTF confirm missing, no veto")
		return false
	}
	bar := math.Max(math.Max(2*p.DecisionBuffer, vetoConfirmShare*p.MTFConfirmBar), vetoFloor)
	c := confirm.Aggregate
	opposed := sign(c)*sign(primary.Aggregate) < 0
	if opposed && math.Abs(c) >= bar {
		primary.AddReasonf("MTF veto: confirm=%.3f opposes primary=%.3f (bar %.3f)", c, primary.Aggregate, bar)
		return true
	}
	primary.AddReasonf("MTF ok: confirm=%.3f primary=%.3f (bar %.3f)", c, primary.Aggregate, bar)
	return false
}

func whaleGate(dc *models.DecisionContext) (string, bool) {
	b := dc.Behavior
	if b == nil {
		return "", false
	}
	bias := finiteOr(b.WhaleBias, 0)
	switch {
	case dc.Aggregate > 0 && dc.TrendRaw > 0:
		if b.SupplyOvercomingDemand || b.VSASignal == models.VSADistribution ||
			(b.VSASignal == models.VSAAbsorption && bias < -whaleBiasBlock) {
			return fmt.Sprintf("Whale gate: bullish entry blocked (vsa=%s, whale_bias=%.2f, supply_over_demand=%t)",
				b.VSASignal, bias, b.SupplyOvercomingDemand), true
		}
	case dc.Aggregate < 0 && dc.TrendRaw < 0:
		if b.VSASignal == models.VSAAbsorption && bias > whaleBiasBlock {
			return fmt.Sprintf("Whale gate: bearish entry blocked (vsa=%s, whale_bias=%.2f)", b.VSASignal, bias), true
		}
	}
	return "", false
}

func (e *Engine) propose(side models.Side, dc *models.DecisionContext) *models.Position {
	entry := math.Max(finiteOr(dc.Price, 0), 0)
	stop := BuildStop(side, entry, dc.ATR, e.params.ATRStopMult)
	pos := &models.Position{Side: side, EntryPrice: entry, StopPrice: stop}
	if stop != nil {
		initial := *stop
		pos.InitialStop = &initial
	}
	return pos
}

// BuildStop places the protective stop ATR·mult away from entry. It returns
// nil when any input is non-positive or non-finite.
func BuildStop(side models.Side, entry, atr, mult float64) *float64 {
	if !(entry > 0) || !(atr > 0) || !(mult > 0) ||
		math.IsInf(entry, 0) || math.IsInf(atr, 0) || math.IsInf(mult, 0) {
		return nil
	}
	stop := entry - mult*atr
	if side == models.SideShort {
		stop = entry + mult*atr
	}
	if math.IsNaN(stop) || math.IsInf(stop, 0) {
		return nil
	}
	stop = math.Max(stop, 0)
	return &stop
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func round(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(finiteOr(v, 0)).Round(places)
}

func fmt3(v float64) string { return round(v, 3).StringFixed(3) }

// Fingerprint identifies a cycle outcome so unchanged cycles can be skipped.
func Fingerprint(primary, confirm *models.DecisionContext) string {
	parts := []string{
		round(primary.Aggregate, 3).String(),
		round(primary.Trend, 3).String(),
		round(primary.Momentum, 3).String(),
		round(primary.MeanRev, 3).String(),
		round(primary.Breakout, 3).String(),
		round(primary.Price, -4).String(),
	}
	if confirm != nil {
		parts = append(parts, round(confirm.Aggregate, 3).String())
	}
	return strings.Join(parts, "|")
}
