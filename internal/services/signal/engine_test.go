package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
)

func newEngine(t *testing.T, mutate func(*models.StrategyParams)) *Engine {
	t.Helper()
	p := models.DefaultStrategyParams()
	if mutate != nil {
		mutate(&p)
	}
	e, err := NewEngine(p)
	require.NoError(t, err)
	return e
}

func primaryCtx(agg float64) *models.DecisionContext {
	return &models.DecisionContext{
		Timeframe: "240",
		Price:     100,
		ATR:       2,
		ADX:       10,
		VolRatio:  1,
		Regime:    models.RegimeNeutral,
		Aggregate: agg,
	}
}

func TestNewEngineRejectsInvalidParams(t *testing.T) {
	p := models.DefaultStrategyParams()
	p.Weights = models.Weights{}
	_, err := NewEngine(p)
	assert.ErrorIs(t, err, models.ErrInvalidStrategy)
}

func TestMissingConfirmNeverVetoes(t *testing.T) {
	e := newEngine(t, nil)
	dc := primaryCtx(0.25)

	d := e.Decide(dc, nil)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.False(t, d.Vetoed)
	assert.InDelta(t, 0.18, d.BuyThreshold, 1e-12)
	require.NotNil(t, d.Proposed)
	assert.Equal(t, models.SideLong, d.Proposed.Side)
	require.NotNil(t, d.Proposed.StopPrice)
	assert.InDelta(t, 96.0, *d.Proposed.StopPrice, 1e-9)
	assert.Equal(t, *d.Proposed.StopPrice, *d.Proposed.InitialStop)
	assert.Zero(t, d.Proposed.Qty)
	assert.NotEmpty(t, dc.Reasons)
}

func TestMTFVeto(t *testing.T) {
	e := newEngine(t, nil)

	d := e.Decide(primaryCtx(0.5), &models.DecisionContext{Aggregate: -0.5})
	assert.Equal(t, models.ActionHold, d.Action)
	assert.True(t, d.Vetoed)
	assert.Nil(t, d.Proposed)

	// below max(2*buffer, 0.35*bar, 0.05) the confirm TF is too weak to object
	d = e.Decide(primaryCtx(0.5), &models.DecisionContext{Aggregate: -0.04})
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.False(t, d.Vetoed)

	d = e.Decide(primaryCtx(-0.5), &models.DecisionContext{Aggregate: -0.9})
	assert.Equal(t, models.ActionSell, d.Action)

	relaxed := newEngine(t, func(p *models.StrategyParams) { p.RequireMTFAgreement = false })
	d = relaxed.Decide(primaryCtx(0.5), &models.DecisionContext{Aggregate: -0.5})
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestSellProposesStopAbove(t *testing.T) {
	e := newEngine(t, nil)
	d := e.Decide(primaryCtx(-0.3), nil)
	require.Equal(t, models.ActionSell, d.Action)
	require.NotNil(t, d.Proposed.StopPrice)
	assert.InDelta(t, 104.0, *d.Proposed.StopPrice, 1e-9)
	assert.Equal(t, models.SideShort, d.Proposed.Side)
}

func TestWhaleGate(t *testing.T) {
	e := newEngine(t, nil)

	dc := primaryCtx(0.5)
	dc.TrendRaw = 0.3
	dc.Behavior = &models.BehaviorResult{VSASignal: models.VSADistribution}
	d := e.Decide(dc, nil)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Contains(t, dc.Reasons[len(dc.Reasons)-1], "Whale gate")

	dc = primaryCtx(0.5)
	dc.TrendRaw = 0.3
	dc.Behavior = &models.BehaviorResult{VSASignal: models.VSAAbsorption, WhaleBias: -0.5}
	assert.Equal(t, models.ActionHold, e.Decide(dc, nil).Action)

	dc = primaryCtx(0.5)
	dc.TrendRaw = 0.3
	dc.Behavior = &models.BehaviorResult{VSASignal: models.VSAAbsorption, WhaleBias: 0.1}
	assert.Equal(t, models.ActionBuy, e.Decide(dc, nil).Action)

	dc = primaryCtx(-0.5)
	dc.TrendRaw = -0.3
	dc.Behavior = &models.BehaviorResult{VSASignal: models.VSAAbsorption, WhaleBias: 0.5}
	assert.Equal(t, models.ActionHold, e.Decide(dc, nil).Action)
}

func TestFastPathBypassesVolGuard(t *testing.T) {
	e := newEngine(t, nil)

	dc := primaryCtx(0)
	dc.Trend, dc.Breakout, dc.ADX = 0.6, 0.5, 30
	dc.Regime = models.RegimeHigh
	dc.VolRatio = 0.5
	d := e.Decide(dc, nil)
	assert.Equal(t, models.ActionBuy, d.Action)
	require.NotNil(t, d.Proposed)

	dc = primaryCtx(0)
	dc.Trend, dc.Breakout, dc.ADX = -0.6, -0.5, 30
	dc.Regime = models.RegimeHigh
	assert.Equal(t, models.ActionSell, e.Decide(dc, nil).Action)

	// impulse entries outside HIGH regime are disabled by default
	dc = primaryCtx(0)
	dc.Trend, dc.Breakout, dc.ADX = 0.6, 0.5, 30
	assert.Equal(t, models.ActionHold, e.Decide(dc, nil).Action)

	// breakout against the trend is not an impulse
	dc = primaryCtx(0)
	dc.Trend, dc.Breakout, dc.ADX = 0.6, -0.5, 30
	dc.Regime = models.RegimeHigh
	assert.Equal(t, models.ActionHold, e.Decide(dc, nil).Action)
}

func TestVolGuardSuppressesThresholdEntries(t *testing.T) {
	e := newEngine(t, nil)
	dc := primaryCtx(0.5)
	dc.VolRatio = 0.5
	d := e.Decide(dc, nil)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Contains(t, dc.Reasons[len(dc.Reasons)-1], "Vol guard")
}

func TestThresholds(t *testing.T) {
	e := newEngine(t, nil)

	buy, sell := e.Thresholds(1)
	assert.InDelta(t, 0.18, buy, 1e-12)
	assert.InDelta(t, 0.18, sell, 1e-12)

	buy, _ = e.Thresholds(2)
	assert.InDelta(t, 0.10, buy, 1e-12)

	buy, _ = e.Thresholds(0.5)
	assert.InDelta(t, 0.26, buy, 1e-12)

	buy, _ = e.Thresholds(math.NaN())
	assert.InDelta(t, 0.18, buy, 1e-12)

	floored := newEngine(t, func(p *models.StrategyParams) { p.BuyThreshold = 0.05; p.DecisionBuffer = 0.1 })
	buy, _ = floored.Thresholds(1)
	assert.Equal(t, 0.01, buy)
}

func TestGateAndWeight(t *testing.T) {
	e := newEngine(t, nil)

	dc := &models.DecisionContext{TrendRaw: 1, ADX: 30, Regime: models.RegimeNeutral}
	e.GateAndWeight(dc)
	assert.InDelta(t, 0.30, dc.Aggregate, 1e-9)
	assert.False(t, dc.TrendGated)

	dc = &models.DecisionContext{TrendRaw: 1, ADX: 5, Regime: models.RegimeNeutral}
	e.GateAndWeight(dc)
	assert.InDelta(t, 0.4, dc.Trend, 1e-12)
	assert.True(t, dc.TrendGated)

	dc = &models.DecisionContext{TrendRaw: 0.5, MeanRevRaw: -0.8, ADX: 30, Regime: models.RegimeNeutral}
	e.GateAndWeight(dc)
	assert.InDelta(t, -0.16, dc.MeanRev, 1e-12)
	assert.True(t, dc.MeanRevGated)

	dc = &models.DecisionContext{TrendRaw: 1, ADX: 30, Regime: models.RegimeLow}
	e.GateAndWeight(dc)
	assert.InDelta(t, 0.21/0.93*0.7, dc.Aggregate, 1e-9)
}

func TestAggregateBounded(t *testing.T) {
	e := newEngine(t, func(p *models.StrategyParams) { p.RegimeScale.Neutral = 10 })
	dc := &models.DecisionContext{
		TrendRaw: 1, MomentumRaw: 1, MeanRevRaw: 1, BreakoutRaw: 1, BehaviorBias: 1,
		ADX: 30, Regime: models.RegimeNeutral,
	}
	e.GateAndWeight(dc)
	assert.Equal(t, 2.0, dc.Aggregate)
	assert.Contains(t, dc.Reasons[0], "clamped")

	dc = &models.DecisionContext{TrendRaw: math.NaN(), ADX: math.NaN(), Regime: models.RegimeNeutral}
	e.GateAndWeight(dc)
	assert.Equal(t, 0.0, dc.Aggregate)
	assert.True(t, dc.TrendGated)
}

func TestBuildStop(t *testing.T) {
	assert.Nil(t, BuildStop(models.SideLong, 100, 0, 2))
	assert.Nil(t, BuildStop(models.SideLong, 100, 2, 0))
	assert.Nil(t, BuildStop(models.SideLong, 0, 2, 2))
	assert.Nil(t, BuildStop(models.SideLong, math.Inf(1), 2, 2))

	s := BuildStop(models.SideLong, 10, 20, 2)
	require.NotNil(t, s)
	assert.Equal(t, 0.0, *s)

	s = BuildStop(models.SideShort, 100, 2, 2)
	require.NotNil(t, s)
	assert.Equal(t, 104.0, *s)
}

func TestFingerprint(t *testing.T) {
	a := &models.DecisionContext{Aggregate: 0.12341, Trend: 0.5, Momentum: -0.2, MeanRev: 0.1, Breakout: 0.3, Price: 123456}
	b := &models.DecisionContext{Aggregate: 0.12349, Trend: 0.5, Momentum: -0.2, MeanRev: 0.1, Breakout: 0.3, Price: 121000}

	assert.Equal(t, "0.123|0.5|-0.2|0.1|0.3|120000", Fingerprint(a, nil))
	assert.Equal(t, Fingerprint(a, nil), Fingerprint(b, nil))
	assert.Equal(t, "0.123|0.5|-0.2|0.1|0.3|120000|-0.05", Fingerprint(a, &models.DecisionContext{Aggregate: -0.0501}))

	b.Trend = 0.6
	assert.NotEqual(t, Fingerprint(a, nil), Fingerprint(b, nil))
}

func uptrend(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Candle{Time: int64(i) * 14400, Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func TestDeriveContext(t *testing.T) {
	params := models.DefaultStrategyParams()

	_, err := DeriveContext(nil, "240", params, nil)
	assert.ErrorIs(t, err, domrepo.ErrNoData)

	beh := &models.BehaviorResult{WhaleBias: 0.4}
	dc, err := DeriveContext(uptrend(120), "240", params, beh)
	require.NoError(t, err)
	assert.Equal(t, 219.0, dc.Price)
	assert.Greater(t, dc.TrendRaw, 0.6)
	assert.Greater(t, dc.MomentumRaw, 0.5)
	assert.Less(t, dc.MeanRevRaw, 0.0)
	assert.Greater(t, dc.BreakoutRaw, 0.0)
	assert.LessOrEqual(t, dc.BreakoutRaw, 1.0)
	assert.InDelta(t, 2.0, dc.ATR, 1e-9)
	assert.InDelta(t, 1.0, dc.VolRatio, 1e-9)
	assert.Equal(t, models.RegimeNeutral, dc.Regime)
	assert.Equal(t, 0.4, dc.BehaviorBias)
	assert.NotEmpty(t, dc.RegimeReasons)
}

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		trend, adx, vr float64
		want           models.Regime
	}{
		{0.7, 25, 1.2, models.RegimeHigh},
		{-0.7, 25, 1.2, models.RegimeHigh},
		{0.7, 10, 1.2, models.RegimeNeutral},
		{0.2, 25, 0.95, models.RegimeNeutral},
		{0.2, 25, 0.8, models.RegimeLow},
	}
	for _, tt := range tests {
		got, reasons := ClassifyRegime(tt.trend, tt.adx, tt.vr, 18)
		assert.Equal(t, tt.want, got, "trend=%v adx=%v vr=%v", tt.trend, tt.adx, tt.vr)
		assert.Len(t, reasons, 4)
	}
}

func TestOverrideLastPrice(t *testing.T) {
	in := []models.Candle{{Close: 10, High: 11, Low: 9}, {Close: 10, High: 11, Low: 9}}

	out := OverrideLastPrice(in, 12)
	assert.Equal(t, 12.0, out[1].Close)
	assert.Equal(t, 12.0, out[1].High)
	assert.Equal(t, 9.0, out[1].Low)
	assert.Equal(t, 10.0, in[1].Close, "input untouched")

	out = OverrideLastPrice(in, 8)
	assert.Equal(t, 8.0, out[1].Low)

	assert.Equal(t, in, OverrideLastPrice(in, 0))
}
