// Package account simulates a single-position trading account: sizing,
// entries, and the exit lifecycle of the open position.
package account

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"SmartTrader/internal/domain/models"
)

// R-multiples driving the exit lifecycle.
const (
	TakeProfitR = 0.70
	BreakevenR  = 0.35
)

var ErrTradeDeclined = errors.New("trade declined")

type Account struct {
	Symbol   string
	Equity   float64
	Balance  float64
	Position *models.Position

	now   func() time.Time
	newID func() string
}

type Option func(*Account)

func WithClock(now func() time.Time) Option {
	return func(a *Account) { a.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(a *Account) { a.newID = f }
}

func New(symbol string, startEquity float64, opts ...Option) *Account {
	a := &Account{
		Symbol:  symbol,
		Equity:  startEquity,
		Balance: startEquity,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Restore rebuilds an account from a persisted snapshot.
func Restore(s *models.AccountSnapshot, opts ...Option) *Account {
	a := New(s.Symbol, s.Equity, opts...)
	a.Balance = s.Balance
	if s.Position != nil {
		p := *s.Position
		a.Position = &p
	}
	return a
}

// UpdateEquity marks the open position to market. A long holds its
// notional outside the cash balance; a short is cash-settled.
//
// Opening a long debits qty·entry from Balance, so Balance + qty·mark equals
// the pre-open balance plus UnrealizedPnL(mark). Both branches therefore
// report cash plus unrealized P&L.
func (a *Account) UpdateEquity(mark float64) {
	p := a.Position
	switch {
	case p == nil:
		a.Equity = a.Balance
	case p.Side == models.SideLong:
		a.Equity = a.Balance + p.Qty*mark
	default:
		a.Equity = a.Balance + p.UnrealizedPnL(mark)
	}
}

func (a *Account) CanTrade(minNotional, price float64) bool {
	return a.Balance >= math.Max(minNotional, 0) && price > 0
}

// PositionSizeByRisk returns the quantity risking equity·risk between entry
// and stop, or 0 when the inputs cannot produce a positive finite size.
func PositionSizeByRisk(equity, risk, entry float64, stop *float64) float64 {
	if stop == nil || !finite(equity) || !finite(risk) || !finite(entry) || entry <= 0 || !finite(*stop) {
		return 0
	}
	perUnit := math.Abs(entry - *stop)
	if perUnit <= 0 {
		return 0
	}
	qty := math.Max(equity, 0) * math.Max(risk, 0) / perUnit
	if !finite(qty) || qty <= 0 {
		return 0
	}
	return qty
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Open turns a BUY/SELL decision into a position at price.
func (a *Account) Open(d models.Decision, price, riskFrac, minTradeValue float64) (models.TradeEvent, error) {
	if a.Position != nil {
		return models.TradeEvent{}, fmt.Errorf("%w: position already open", ErrTradeDeclined)
	}
	if d.Proposed == nil || d.Action == models.ActionHold {
		return models.TradeEvent{}, fmt.Errorf("%w: no proposal", ErrTradeDeclined)
	}
	if !(price > 0) || !finite(price) {
		return models.TradeEvent{}, fmt.Errorf("%w: invalid price %v", ErrTradeDeclined, price)
	}
	a.UpdateEquity(price)
	if !a.CanTrade(minTradeValue, price) {
		return models.TradeEvent{}, fmt.Errorf("%w: balance %.2f below min notional %.2f", ErrTradeDeclined, a.Balance, minTradeValue)
	}

	side := d.Proposed.Side
	stop := d.Proposed.StopPrice
	var qty float64
	if stop != nil {
		qty = PositionSizeByRisk(a.Equity, riskFrac, price, stop)
	} else {
		qty = math.Max(minTradeValue/price, 0)
	}
	if qty <= 0 {
		return models.TradeEvent{}, fmt.Errorf("%w: computed qty <= 0", ErrTradeDeclined)
	}

	notional := qty * price
	if notional < minTradeValue {
		need := minTradeValue / price
		if side == models.SideLong && need*price > a.Balance {
			return models.TradeEvent{}, fmt.Errorf("%w: cannot reach min notional with balance %.2f", ErrTradeDeclined, a.Balance)
		}
		qty = need
		notional = qty * price
	}
	if side == models.SideLong && notional > a.Balance {
		qty = a.Balance / price
		notional = a.Balance
	}

	pos := &models.Position{
		TradeID:    a.newID(),
		Side:       side,
		Qty:        qty,
		EntryPrice: price,
		OpenedAt:   a.now(),
	}
	if stop != nil {
		s, init := *stop, *stop
		pos.StopPrice, pos.InitialStop = &s, &init
		pos.Risk = qty * math.Abs(price-s)
	}
	if side == models.SideLong {
		a.Balance -= notional
	}
	a.Position = pos
	a.UpdateEquity(price)

	return models.TradeEvent{
		TradeID:    pos.TradeID,
		Timestamp:  pos.OpenedAt,
		Symbol:     a.Symbol,
		EventType:  models.EventOpen,
		Side:       side,
		Qty:        qty,
		EntryPrice: price,
		StopPrice:  copyPtr(pos.StopPrice),
		Reason:     string(d.Action),
	}, nil
}

// RMultiple is the favorable move from entry in units of initial risk.
func RMultiple(p *models.Position, price float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	ref := p.InitialStop
	if ref == nil {
		ref = p.StopPrice
	}
	if ref == nil {
		return 0, false
	}
	risk := math.Abs(p.EntryPrice - *ref)
	if risk <= 0 {
		return 0, false
	}
	move := price - p.EntryPrice
	if p.Side == models.SideShort {
		move = -move
	}
	return move / risk, true
}

// ManageOpen advances the open position one cycle. It returns the close
// event when the position was closed, and whether breakeven was armed now.
func (a *Account) ManageOpen(price float64, action models.Action) (*models.TradeEvent, bool) {
	p := a.Position
	if p == nil || !(price > 0) {
		return nil, false
	}

	armed := false
	if r, ok := RMultiple(p, price); ok {
		if r >= TakeProfitR {
			p.TPHit = true
			return a.close(price, models.ReasonTPHit), false
		}
		if r >= BreakevenR && !p.BreakevenArmed {
			entry := p.EntryPrice
			p.StopPrice = &entry
			p.BreakevenArmed = true
			armed = true
		}
	}

	if s := p.StopPrice; s != nil {
		if (p.Side == models.SideLong && price <= *s) || (p.Side == models.SideShort && price >= *s) {
			return a.close(price, models.ReasonStopHit), armed
		}
	}

	if (p.Side == models.SideLong && action == models.ActionSell) ||
		(p.Side == models.SideShort && action == models.ActionBuy) {
		return a.close(price, models.ReasonReverseSignal), armed
	}

	a.UpdateEquity(price)
	return nil, armed
}

func (a *Account) close(price float64, reason string) *models.TradeEvent {
	p := a.Position
	pnl := p.UnrealizedPnL(price)
	if p.Side == models.SideLong {
		a.Balance += p.Qty * price
	} else {
		a.Balance += pnl
	}
	a.Position = nil
	a.UpdateEquity(price)

	cp := price
	return &models.TradeEvent{
		TradeID:    p.TradeID,
		Timestamp:  a.now(),
		Symbol:     a.Symbol,
		EventType:  models.EventClose,
		Side:       p.Side,
		Qty:        p.Qty,
		EntryPrice: p.EntryPrice,
		ClosePrice: &cp,
		StopPrice:  copyPtr(p.StopPrice),
		PnL:        &pnl,
		Reason:     reason,
	}
}

// Snapshot captures the account for persistence.
func (a *Account) Snapshot() models.AccountSnapshot {
	s := models.AccountSnapshot{
		Timestamp: a.now(),
		Symbol:    a.Symbol,
		Equity:    a.Equity,
		Balance:   a.Balance,
	}
	if p := a.Position; p != nil {
		side, qty, entry := p.Side, p.Qty, p.EntryPrice
		s.PositionSide, s.PositionQty, s.PositionEntry = &side, &qty, &entry
		s.PositionStop = copyPtr(p.StopPrice)
		cp := *p
		cp.StopPrice, cp.InitialStop = copyPtr(p.StopPrice), copyPtr(p.InitialStop)
		s.Position = &cp
	}
	return s
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
