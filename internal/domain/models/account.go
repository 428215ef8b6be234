package models

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is the single open simulated position.
// InitialStop keeps the risk unit for R-multiples after the stop is moved to breakeven.
type Position struct {
	TradeID        string    `json:"trade_id"`
	Side           Side      `json:"side"`
	Qty            float64   `json:"qty"`
	EntryPrice     float64   `json:"entry_price"`
	StopPrice      *float64  `json:"stop_price,omitempty"`
	InitialStop    *float64  `json:"initial_stop,omitempty"`
	BreakevenArmed bool      `json:"breakeven_armed"`
	TPHit          bool      `json:"tp_hit"`
	OpenedAt       time.Time `json:"opened_at"`
	Risk           float64   `json:"risk_amount"`
}

// UnrealizedPnL is direction aware.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	if p == nil {
		return 0
	}
	if p.Side == SideLong {
		return (mark - p.EntryPrice) * p.Qty
	}
	return (p.EntryPrice - mark) * p.Qty
}

type EventType string

const (
	EventOpen  EventType = "OPEN"
	EventClose EventType = "CLOSE"
)

// Close reasons.
const (
	ReasonTPHit         = "TP_HIT"
	ReasonStopHit       = "STOP_HIT"
	ReasonReverseSignal = "REVERSE_SIGNAL"
)

type TradeEvent struct {
	TradeID    string    `json:"trade_id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	EventType  EventType `json:"event_type"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	ClosePrice *float64  `json:"close_price,omitempty"`
	StopPrice  *float64  `json:"stop_price,omitempty"`
	PnL        *float64  `json:"pnl,omitempty"`
	Reason     string    `json:"reason"`
}

type AccountSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	Equity        float64   `json:"equity"`
	Balance       float64   `json:"balance"`
	PositionSide  *Side     `json:"position_side,omitempty"`
	PositionQty   *float64  `json:"position_qty,omitempty"`
	PositionEntry *float64  `json:"position_entry,omitempty"`
	PositionStop  *float64  `json:"position_stop,omitempty"`
	Position      *Position `json:"position,omitempty"`
}

// DecisionRecord is one persisted cycle outcome.
type DecisionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	TF        string    `json:"tf"`
	ConfirmTF string    `json:"confirm_tf"`

	TrendRaw    float64 `json:"trend_raw"`
	MomentumRaw float64 `json:"momentum_raw"`
	MeanRevRaw  float64 `json:"meanrev_raw"`
	BreakoutRaw float64 `json:"breakout_raw"`
	ADX         float64 `json:"adx"`
	ATR         float64 `json:"atr"`

	Trend      float64 `json:"trend"`
	Momentum   float64 `json:"momentum"`
	MeanRev    float64 `json:"meanrev"`
	Breakout   float64 `json:"breakout"`
	AggregateS float64 `json:"aggregate_s"`

	ConfirmS   *float64 `json:"confirm_s,omitempty"`
	ConfirmADX *float64 `json:"confirm_adx,omitempty"`
	ConfirmRSI *float64 `json:"confirm_rsi,omitempty"`

	Decision      Action   `json:"decision"`
	Regime        Regime   `json:"regime"`
	Reasons       []string `json:"reasons"`
	RegimeReasons []string `json:"regime_reasons"`

	StopPrice  *float64 `json:"stop_price,omitempty"`
	TPPrice    *float64 `json:"tp_price,omitempty"`
	PosSize    *float64 `json:"pos_size,omitempty"`
	RiskAmount *float64 `json:"risk_amount,omitempty"`

	TrendGated    bool `json:"trend_gated"`
	MomentumGated bool `json:"momentum_gated"`
	MeanRevGated  bool `json:"meanrev_gated"`
	BreakoutGated bool `json:"breakout_gated"`

	BehaviorScore float64 `json:"behavior_score"`
	BehaviorBias  float64 `json:"behavior_bias"`
	Provider      string  `json:"provider"`
	Confidence    float64 `json:"confidence"`

	Fingerprint string `json:"fingerprint"`
}
