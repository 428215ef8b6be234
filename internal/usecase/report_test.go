package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SmartTrader/internal/domain/models"
)

func TestFormatAnalysis(t *testing.T) {
	stop := 95.0
	primary := &models.DecisionContext{
		Timeframe: "240", Price: 100, TrendRaw: 0.5, ADX: 25, ATR: 2.5, VolRatio: 1, Regime: models.RegimeNeutral,
		Trend: 0.5, Aggregate: 0.2345, Reasons: []string{"regime=NEUTRAL", "Decision BUY: s=0.235 >= 0.180"},
	}
	confirm := &models.DecisionContext{Timeframe: "60", Aggregate: -0.1}
	out := FormatAnalysis(Analysis{
		Iteration: 7,
		Time:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Primary:   primary,
		Confirm:   confirm,
		Decision: models.Decision{
			Action: models.ActionBuy, BuyThreshold: 0.18, SellThreshold: 0.18,
			Proposed: &models.Position{Side: models.SideLong, EntryPrice: 100, StopPrice: &stop},
		},
		Position: &models.Position{Side: models.SideLong, Qty: 2, EntryPrice: 98},
	})

	assert.Contains(t, out, "Iter: 7  Time: 2025-03-01 12:00:00 UTC")
	assert.Contains(t, out, "Price: 100.00")
	assert.Contains(t, out, "adx: 25.000  atr: 2.50  vr: 1.00  regime: NEUTRAL")
	assert.Contains(t, out, "Aggregate S (240): 0.235 | Thresh: BUY>=0.180 SELL<=-0.180")
	assert.Contains(t, out, "S(60): -0.100")
	assert.Contains(t, out, "Trade: side=LONG entry=100.00 stop=95.00")
	assert.Contains(t, out, "side: LONG  qty: 2.000000  entry: 98.00  stop: none")
	assert.Contains(t, out, "notional: 196.00  uPnL: 4.00")
	assert.Contains(t, out, "  - Decision BUY: s=0.235 >= 0.180")
}

func TestTradeMessages(t *testing.T) {
	pnl, cp := -40.0, 95.0
	msg := closeMessage("BTCTMN", models.TradeEvent{Side: models.SideLong, Qty: 10, ClosePrice: &cp, PnL: &pnl, Reason: models.ReasonStopHit})
	assert.Equal(t, "🛑 <b>Closed</b> BTCTMN LONG qty=10.000000 @ 95.00\nPnL: -40.00 (STOP_HIT)", msg)

	msg = openMessage("BTCTMN", models.TradeEvent{Reason: "SELL", Qty: 1.5, EntryPrice: 100})
	assert.Equal(t, "<b>Trade</b> SELL BTCTMN qty=1.500000 @ 100.00\nNotional: 150.00\nStop: none", msg)
}
