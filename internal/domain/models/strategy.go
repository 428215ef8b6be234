package models

import (
	"errors"
	"fmt"
	"math"
)

type Weights struct {
	Trend    float64 `yaml:"trend" json:"trend" default:"0.30" validate:"gte=0"`
	Momentum float64 `yaml:"momentum" json:"momentum" default:"0.20" validate:"gte=0"`
	MeanRev  float64 `yaml:"meanrev" json:"meanrev" default:"0.15" validate:"gte=0"`
	Breakout float64 `yaml:"breakout" json:"breakout" default:"0.20" validate:"gte=0"`
	Behavior float64 `yaml:"behavior" json:"behavior" default:"0.15" validate:"gte=0"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Trend + w.Momentum + w.MeanRev + w.Breakout + w.Behavior
}

// Normalized scales the weights to sum to one. A non-positive sum falls back to equal weights.
func (w Weights) Normalized() Weights {
	s := w.Sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Weights{Trend: 0.2, Momentum: 0.2, MeanRev: 0.2, Breakout: 0.2, Behavior: 0.2}
	}
	return Weights{
		Trend:    w.Trend / s,
		Momentum: w.Momentum / s,
		MeanRev:  w.MeanRev / s,
		Breakout: w.Breakout / s,
		Behavior: w.Behavior / s,
	}
}

type RegimeScale struct {
	Low     float64 `yaml:"low" json:"low" default:"0.7" validate:"gte=0"`
	Neutral float64 `yaml:"neutral" json:"neutral" default:"1.0" validate:"gte=0"`
	High    float64 `yaml:"high" json:"high" default:"1.3" validate:"gte=0"`
}

func (r RegimeScale) For(regime Regime) float64 {
	switch regime {
	case RegimeLow:
		return r.Low
	case RegimeHigh:
		return r.High
	default:
		return r.Neutral
	}
}

// StrategyParams configures gating, thresholds and risk. Immutable once validated.
type StrategyParams struct {
	Weights             Weights     `yaml:"weights" json:"weights"`
	BuyThreshold        float64     `yaml:"s_buy" json:"s_buy" default:"0.18"`
	SellThreshold       float64     `yaml:"s_sell" json:"s_sell" default:"0.18"`
	MinADXForTrend      float64     `yaml:"min_adx_for_trend" json:"min_adx_for_trend" default:"18"`
	RegimeScale         RegimeScale `yaml:"regime_scale" json:"regime_scale"`
	MaxRiskPerTrade     float64     `yaml:"max_risk_per_trade" json:"max_risk_per_trade" default:"0.01"`
	ATRStopMult         float64     `yaml:"atr_stop_mult" json:"atr_stop_mult" default:"2.0"`
	RequireMTFAgreement bool        `yaml:"require_mtf_agreement" json:"require_mtf_agreement" default:"true"`
	DecisionBuffer      float64     `yaml:"decision_buffer" json:"decision_buffer" default:"0"`
	MTFConfirmBar       float64     `yaml:"mtf_confirm_bar" json:"mtf_confirm_bar" default:"0.18"`
	MinVRTrade          float64     `yaml:"min_vr_trade" json:"min_vr_trade" default:"0.88"`
	MinVRIntracandle    float64     `yaml:"min_vr_intracandle" json:"min_vr_intracandle" default:"0.95"`
	VRAdaptK            float64     `yaml:"vr_adapt_k" json:"vr_adapt_k" default:"0.25"`
	VRAdaptClamp        float64     `yaml:"vr_adapt_clamp" json:"vr_adapt_clamp" default:"0.08"`
	ImpulseOnlyHigh     bool        `yaml:"impulse_only_high" json:"impulse_only_high" default:"true"`
	AllowIntracandle    bool        `yaml:"allow_intracandle" json:"allow_intracandle" default:"true"`
}

// DefaultStrategyParams returns the production defaults.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		Weights:             Weights{Trend: 0.30, Momentum: 0.20, MeanRev: 0.15, Breakout: 0.20, Behavior: 0.15},
		BuyThreshold:        0.18,
		SellThreshold:       0.18,
		MinADXForTrend:      18,
		RegimeScale:         RegimeScale{Low: 0.7, Neutral: 1.0, High: 1.3},
		MaxRiskPerTrade:     0.01,
		ATRStopMult:         2.0,
		RequireMTFAgreement: true,
		DecisionBuffer:      0,
		MTFConfirmBar:       0.18,
		MinVRTrade:          0.88,
		MinVRIntracandle:    0.95,
		VRAdaptK:            0.25,
		VRAdaptClamp:        0.08,
		ImpulseOnlyHigh:     true,
		AllowIntracandle:    true,
	}
}

var ErrInvalidStrategy = errors.New("invalid strategy params")

// Validate rejects parameter sets the engine cannot reason with.
func (p StrategyParams) Validate() error {
	finite := map[string]float64{
		"s_buy": p.BuyThreshold, "s_sell": p.SellThreshold, "min_adx_for_trend": p.MinADXForTrend,
		"max_risk_per_trade": p.MaxRiskPerTrade, "atr_stop_mult": p.ATRStopMult,
		"decision_buffer": p.DecisionBuffer, "mtf_confirm_bar": p.MTFConfirmBar,
		"min_vr_trade": p.MinVRTrade, "min_vr_intracandle": p.MinVRIntracandle,
		"vr_adapt_k": p.VRAdaptK, "vr_adapt_clamp": p.VRAdaptClamp,
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number", ErrInvalidStrategy, name)
		}
	}
	if p.Weights.Sum() <= 0 {
		return fmt.Errorf("%w: weights must not all be zero", ErrInvalidStrategy)
	}
	if p.MaxRiskPerTrade > 1 {
		return fmt.Errorf("%w: max_risk_per_trade must be <= 1", ErrInvalidStrategy)
	}
	return nil
}
