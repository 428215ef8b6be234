package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SmartTrader/internal/domain/models"
)

const rule = "===================================="

// Analysis is everything shown in one SMART ANALYSIS block.
type Analysis struct {
	Iteration int
	Time      time.Time
	Primary   *models.DecisionContext
	Confirm   *models.DecisionContext
	Decision  models.Decision
	Position  *models.Position
}

func num(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func optNum(v *float64, places int32) string {
	if v == nil {
		return "none"
	}
	return num(*v, places)
}

// FormatAnalysis renders the human-readable cycle summary that is logged
// and sent to Telegram.
func FormatAnalysis(a Analysis) string {
	p := a.Primary
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("========== SMART ANALYSIS ==========")
	line("Iter: %d  Time: %s UTC", a.Iteration, a.Time.UTC().Format(time.DateTime))
	line("Price: %s", num(p.Price, 2))
	line("-- Raw Channels (%s) --", p.Timeframe)
	line("trend_raw: %s  momentum_raw: %s  meanrev_raw: %s  breakout_raw: %s",
		num(p.TrendRaw, 3), num(p.MomentumRaw, 3), num(p.MeanRevRaw, 3), num(p.BreakoutRaw, 3))
	line("adx: %s  atr: %s  vr: %s  regime: %s", num(p.ADX, 3), num(p.ATR, 2), num(p.VolRatio, 2), p.Regime)
	line("-- Post-Gate (%s) --", p.Timeframe)
	line("trend: %s  momentum: %s  meanrev: %s  breakout: %s  behavior: %s",
		num(p.Trend, 3), num(p.Momentum, 3), num(p.MeanRev, 3), num(p.Breakout, 3), num(p.BehaviorBias, 3))
	line("Aggregate S (%s): %s | Thresh: BUY>=%s SELL<=%s", p.Timeframe, num(p.Aggregate, 3),
		num(a.Decision.BuyThreshold, 3), num(-a.Decision.SellThreshold, 3))
	if c := a.Confirm; c != nil {
		line("-- Post-Gate (%s) --", c.Timeframe)
		line("S(%s): %s  trend: %s  mom: %s  mr: %s  bo: %s", c.Timeframe, num(c.Aggregate, 3),
			num(c.Trend, 3), num(c.Momentum, 3), num(c.MeanRev, 3), num(c.Breakout, 3))
	}
	if beh := p.Behavior; beh != nil {
		line("behavior: score=%s vsa=%s whale=%s rvol=%s", num(beh.Score, 1), beh.VSASignal, beh.WhaleDirection, num(beh.RVOL, 2))
	}
	line("Decision: %s", a.Decision.Action)
	if tr := a.Decision.Proposed; tr != nil {
		line("Trade: side=%s entry=%s stop=%s", tr.Side, num(tr.EntryPrice, 2), optNum(tr.StopPrice, 2))
	}
	if pos := a.Position; pos != nil {
		line("-- Position State --")
		line("side: %s  qty: %s  entry: %s  stop: %s", pos.Side, num(pos.Qty, 6), num(pos.EntryPrice, 2), optNum(pos.StopPrice, 2))
		line("notional: %s  uPnL: %s  breakeven: %t", num(pos.Qty*pos.EntryPrice, 2), num(pos.UnrealizedPnL(p.Price), 2), pos.BreakevenArmed)
	}
	line("")
	line("Reasons:")
	for _, r := range p.Reasons {
		line("  - %s", r)
	}
	b.WriteString(rule)
	return b.String()
}

func openMessage(symbol string, ev models.TradeEvent) string {
	return fmt.Sprintf("<b>Trade</b> %s %s qty=%s @ %s\nNotional: %s\nStop: %s",
		ev.Reason, symbol, num(ev.Qty, 6), num(ev.EntryPrice, 2), num(ev.Qty*ev.EntryPrice, 2), optNum(ev.StopPrice, 2))
}

func closeMessage(symbol string, ev models.TradeEvent) string {
	icon := "🛑"
	if ev.Reason == models.ReasonTPHit {
		icon = "🎯"
	}
	return fmt.Sprintf("%s <b>Closed</b> %s %s qty=%s @ %s\nPnL: %s (%s)",
		icon, symbol, ev.Side, num(ev.Qty, 6), optNum(ev.ClosePrice, 2), optNum(ev.PnL, 2), ev.Reason)
}
