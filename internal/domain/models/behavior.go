package models

type VSASignal string

const (
	VSANoData       VSASignal = "NO_DATA"
	VSANormal       VSASignal = "NORMAL"
	VSAAbsorption   VSASignal = "ABSORPTION"
	VSADistribution VSASignal = "DISTRIBUTION"
)

type WhaleDirection string

const (
	WhaleBullish WhaleDirection = "BULLISH"
	WhaleBearish WhaleDirection = "BEARISH"
	WhaleNeutral WhaleDirection = "NEUTRAL"
)

// BehaviorResult summarizes order-flow style features of a candle window.
// Scores are in [0,100], WhaleBias in [-1,1], RVOL in [0.1,10].
type BehaviorResult struct {
	Score                  float64        `json:"score"`
	VolumeSpike            float64        `json:"volume_spike"`
	VolatilityShift        float64        `json:"volatility_shift"`
	MomentumBurst          float64        `json:"momentum_burst"`
	VSAScore               float64        `json:"vsa_score"`
	VSASignal              VSASignal      `json:"vsa_signal"`
	RVOL                   float64        `json:"rvol"`
	WhaleBias              float64        `json:"whale_bias"`
	WhaleDirection         WhaleDirection `json:"whale_direction"`
	SupplyOvercomingDemand bool           `json:"supply_overcoming_demand"`
	Explanations           []string       `json:"explanations"`
}
