package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(equity float64) *Account {
	return New("BTCTMN", equity,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "trade-1" }))
}

func ptr(v float64) *float64 { return &v }

func decision(action models.Action, side models.Side, stop *float64) models.Decision {
	return models.Decision{Action: action, Proposed: &models.Position{Side: side, EntryPrice: 100, StopPrice: stop}}
}

func TestPositionSizeByRisk(t *testing.T) {
	assert.InDelta(t, 100000.0, PositionSizeByRisk(100000000, 0.01, 100, ptr(90)), 1e-6)
	assert.Zero(t, PositionSizeByRisk(100000000, 0.01, 100, nil))
	assert.Zero(t, PositionSizeByRisk(1000, 0.01, 100, ptr(100)))
	assert.Zero(t, PositionSizeByRisk(1000, 0.01, 0, ptr(90)))
	assert.Zero(t, PositionSizeByRisk(-5, 0.01, 100, ptr(90)))
}

func TestLongLifecycleBreakevenThenTakeProfit(t *testing.T) {
	a := newAccount(100000000)
	ev, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(95)), 100, 0.01, 0)
	require.NoError(t, err)
	assert.Equal(t, models.EventOpen, ev.EventType)
	assert.Equal(t, "trade-1", ev.TradeID)
	assert.InDelta(t, 200000.0, ev.Qty, 1e-6)
	assert.InDelta(t, 80000000.0, a.Balance, 1e-3)

	closed, armed := a.ManageOpen(101.7, models.ActionHold)
	assert.Nil(t, closed)
	assert.False(t, armed)

	closed, armed = a.ManageOpen(101.75, models.ActionHold)
	assert.Nil(t, closed)
	assert.True(t, armed)
	require.NotNil(t, a.Position.StopPrice)
	assert.Equal(t, 100.0, *a.Position.StopPrice)
	assert.Equal(t, 95.0, *a.Position.InitialStop)

	closed, armed = a.ManageOpen(103.49, models.ActionHold)
	assert.Nil(t, closed)
	assert.False(t, armed, "breakeven arms once")

	closed, _ = a.ManageOpen(103.5, models.ActionHold)
	require.NotNil(t, closed)
	assert.Equal(t, models.ReasonTPHit, closed.Reason)
	assert.InDelta(t, 700000.0, *closed.PnL, 1e-3)
	assert.Nil(t, a.Position)
	assert.InDelta(t, 100700000.0, a.Balance, 1e-3)
	assert.Equal(t, a.Balance, a.Equity)
}

func TestStopHitAfterBreakeven(t *testing.T) {
	a := newAccount(100000000)
	_, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(95)), 100, 0.01, 0)
	require.NoError(t, err)

	_, armed := a.ManageOpen(102, models.ActionHold)
	require.True(t, armed)

	closed, _ := a.ManageOpen(99.9, models.ActionHold)
	require.NotNil(t, closed)
	assert.Equal(t, models.ReasonStopHit, closed.Reason)
	assert.Less(t, *closed.PnL, 0.0)
}

func TestLongEquityIsCashPlusUnrealized(t *testing.T) {
	a := newAccount(1000000)
	before := a.Balance
	_, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 100, 0.01, 0)
	require.NoError(t, err)
	pos := a.Position
	assert.InDelta(t, before-pos.Qty*100, a.Balance, 1e-6, "long debits its notional")
	assert.InDelta(t, before, a.Equity, 1e-6)

	for _, mark := range []float64{80, 100, 125.5} {
		a.UpdateEquity(mark)
		assert.InDelta(t, before+pos.UnrealizedPnL(mark), a.Equity, 1e-6, "mark %v", mark)
	}
}

func TestShortCashSettled(t *testing.T) {
	a := newAccount(1000000)
	_, err := a.Open(decision(models.ActionSell, models.SideShort, ptr(110)), 100, 0.01, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000000.0, a.Balance, "short does not debit notional")
	qty := a.Position.Qty

	closed, _ := a.ManageOpen(97, models.ActionHold)
	assert.Nil(t, closed)
	assert.InDelta(t, 1000000+3*qty, a.Equity, 1e-6)

	closed, _ = a.ManageOpen(100, models.ActionBuy)
	require.NotNil(t, closed)
	assert.Equal(t, models.ReasonReverseSignal, closed.Reason)
	assert.InDelta(t, 0.0, *closed.PnL, 1e-9)
	assert.InDelta(t, 1000000.0, a.Balance, 1e-6)
}

func TestShortStopHit(t *testing.T) {
	a := newAccount(1000000)
	_, err := a.Open(decision(models.ActionSell, models.SideShort, ptr(110)), 100, 0.01, 0)
	require.NoError(t, err)

	closed, _ := a.ManageOpen(110, models.ActionHold)
	require.NotNil(t, closed)
	assert.Equal(t, models.ReasonStopHit, closed.Reason)
	assert.InDelta(t, -10000.0, *closed.PnL, 1e-6)
	assert.InDelta(t, 990000.0, a.Balance, 1e-6)
}

func TestOpenScalesToMinNotional(t *testing.T) {
	a := newAccount(1000)
	ev, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 100, 0.01, 500)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ev.Qty, 1e-9)
	assert.InDelta(t, 500.0, a.Balance, 1e-9)
}

func TestOpenWithoutStopUsesMinNotional(t *testing.T) {
	a := newAccount(1000)
	ev, err := a.Open(decision(models.ActionBuy, models.SideLong, nil), 100, 0.01, 200)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ev.Qty, 1e-9)
	assert.Nil(t, ev.StopPrice)
}

func TestLongNotionalCappedAtBalance(t *testing.T) {
	a := newAccount(1000)
	ev, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(99.9)), 100, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, ev.Qty, 1e-9)
	assert.InDelta(t, 0.0, a.Balance, 1e-9)
	assert.InDelta(t, 1000.0, a.Equity, 1e-9)
}

func TestOpenDeclined(t *testing.T) {
	a := newAccount(300)
	_, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 100, 0.01, 500)
	assert.ErrorIs(t, err, ErrTradeDeclined)

	a = newAccount(1000)
	_, err = a.Open(models.Decision{Action: models.ActionHold}, 100, 0.01, 0)
	assert.ErrorIs(t, err, ErrTradeDeclined)

	_, err = a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 0, 0.01, 0)
	assert.ErrorIs(t, err, ErrTradeDeclined)

	_, err = a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 100, 0.01, 0)
	require.NoError(t, err)
	_, err = a.Open(decision(models.ActionSell, models.SideShort, ptr(110)), 100, 0.01, 0)
	assert.ErrorIs(t, err, ErrTradeDeclined)
}

func TestSnapshotRestore(t *testing.T) {
	a := newAccount(1000)
	_, err := a.Open(decision(models.ActionBuy, models.SideLong, ptr(90)), 100, 0.01, 0)
	require.NoError(t, err)

	s := a.Snapshot()
	require.NotNil(t, s.PositionSide)
	assert.Equal(t, models.SideLong, *s.PositionSide)
	assert.Equal(t, 90.0, *s.PositionStop)

	b := Restore(&s)
	assert.Equal(t, a.Balance, b.Balance)
	require.NotNil(t, b.Position)
	assert.Equal(t, a.Position.TradeID, b.Position.TradeID)

	*s.PositionStop = 1
	assert.Equal(t, 90.0, *a.Position.StopPrice, "snapshot does not alias live state")
}
