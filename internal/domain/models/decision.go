package models

import (
	"fmt"
	"time"
)

type Regime string

const (
	RegimeLow     Regime = "LOW"
	RegimeNeutral Regime = "NEUTRAL"
	RegimeHigh    Regime = "HIGH"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// DecisionContext holds the per-timeframe channel values for one cycle.
// Raw fields are filled by channel derivation; post-gate fields and
// Aggregate are filled by gating. Reasons only grow.
type DecisionContext struct {
	Timeframe string
	Timestamp time.Time
	Price     float64

	TrendRaw    float64
	MomentumRaw float64
	MeanRevRaw  float64
	BreakoutRaw float64

	ADX      float64
	ATR      float64
	RSI      float64
	VolRatio float64
	Regime   Regime

	Behavior     *BehaviorResult
	BehaviorBias float64

	Trend     float64
	Momentum  float64
	MeanRev   float64
	Breakout  float64
	Aggregate float64

	TrendGated    bool
	MomentumGated bool
	MeanRevGated  bool
	BreakoutGated bool

	RegimeReasons []string
	Reasons       []string
}

func (dc *DecisionContext) AddReason(r string) {
	dc.Reasons = append(dc.Reasons, r)
}

func (dc *DecisionContext) AddReasonf(format string, args ...any) {
	dc.Reasons = append(dc.Reasons, fmt.Sprintf(format, args...))
}

// Decision is the engine output. Proposed is set only for BUY/SELL.
type Decision struct {
	Action   Action
	Proposed *Position
	// Thresholds actually applied after buffer and volatility shift.
	BuyThreshold  float64
	SellThreshold float64
	Vetoed        bool
}
