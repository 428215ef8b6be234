package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SmartTrader/internal/domain/models"
)

const (
	decisionsTable = "trading_logs"
	tradesTable    = "trade_events"
	accountTable   = "account_state"
)

// column describes one journal column for both SQL dialects.
type column struct {
	name       string
	sqlite     string
	clickhouse string
}

var decisionColumns = []column{
	{"timestamp", "TEXT NOT NULL", "DateTime64(3, 'UTC')"},
	{"symbol", "TEXT", "LowCardinality(String)"},
	{"open", "REAL", "Float64"},
	{"high", "REAL", "Float64"},
	{"low", "REAL", "Float64"},
	{"price", "REAL NOT NULL", "Float64"},
	{"volume", "REAL", "Float64"},
	{"tf", "TEXT", "LowCardinality(String)"},
	{"confirm_tf", "TEXT", "LowCardinality(String)"},
	{"trend_raw", "REAL", "Float64"},
	{"momentum_raw", "REAL", "Float64"},
	{"meanrev_raw", "REAL", "Float64"},
	{"breakout_raw", "REAL", "Float64"},
	{"adx", "REAL", "Float64"},
	{"atr", "REAL", "Float64"},
	{"trend", "REAL", "Float64"},
	{"momentum", "REAL", "Float64"},
	{"meanrev", "REAL", "Float64"},
	{"breakout", "REAL", "Float64"},
	{"aggregate_s", "REAL", "Float64"},
	{"confirm_s", "REAL", "Nullable(Float64)"},
	{"confirm_adx", "REAL", "Nullable(Float64)"},
	{"confirm_rsi", "REAL", "Nullable(Float64)"},
	{"decision", "TEXT", "LowCardinality(String)"},
	{"regime", "TEXT", "LowCardinality(String)"},
	{"reasons_json", "TEXT", "String"},
	{"regime_reasons", "TEXT", "String"},
	{"stop_price", "REAL", "Nullable(Float64)"},
	{"tp_price", "REAL", "Nullable(Float64)"},
	{"pos_size", "REAL", "Nullable(Float64)"},
	{"risk_amount", "REAL", "Nullable(Float64)"},
	{"trend_gated", "INTEGER", "UInt8"},
	{"momentum_gated", "INTEGER", "UInt8"},
	{"meanrev_gated", "INTEGER", "UInt8"},
	{"breakout_gated", "INTEGER", "UInt8"},
	{"behavior_score", "REAL", "Float64"},
	{"behavior_bias", "REAL", "Float64"},
	{"providers", "TEXT", "String"},
	{"confidence", "REAL", "Float64"},
	{"fingerprint", "TEXT", "String"},
}

var tradeColumns = []column{
	{"trade_id", "TEXT", "String"},
	{"timestamp", "TEXT NOT NULL", "DateTime64(3, 'UTC')"},
	{"symbol", "TEXT NOT NULL", "LowCardinality(String)"},
	{"event_type", "TEXT NOT NULL", "LowCardinality(String)"},
	{"side", "TEXT", "LowCardinality(String)"},
	{"qty", "REAL", "Float64"},
	{"entry_price", "REAL", "Float64"},
	{"close_price", "REAL", "Nullable(Float64)"},
	{"stop_price", "REAL", "Nullable(Float64)"},
	{"pnl", "REAL", "Nullable(Float64)"},
	{"reason", "TEXT", "String"},
}

var accountColumns = []column{
	{"timestamp", "TEXT NOT NULL", "DateTime64(3, 'UTC')"},
	{"symbol", "TEXT NOT NULL", "LowCardinality(String)"},
	{"equity", "REAL", "Float64"},
	{"balance", "REAL", "Float64"},
	{"position_side", "TEXT", "Nullable(String)"},
	{"position_qty", "REAL", "Nullable(Float64)"},
	{"position_entry", "REAL", "Nullable(Float64)"},
	{"position_stop", "REAL", "Nullable(Float64)"},
}

func columnNames(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

func insertSQL(table string, cols []column) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columnNames(cols), ", "), ph)
}

// Values below line up with the column slices above.

func decisionValues(r *models.DecisionRecord) []any {
	return []any{
		r.Timestamp.UTC(), r.Symbol, r.Open, r.High, r.Low, r.Price, r.Volume, r.TF, r.ConfirmTF,
		r.TrendRaw, r.MomentumRaw, r.MeanRevRaw, r.BreakoutRaw, r.ADX, r.ATR,
		r.Trend, r.Momentum, r.MeanRev, r.Breakout, r.AggregateS,
		nullable(r.ConfirmS), nullable(r.ConfirmADX), nullable(r.ConfirmRSI),
		string(r.Decision), string(r.Regime), jsonList(r.Reasons), jsonList(r.RegimeReasons),
		nullable(r.StopPrice), nullable(r.TPPrice), nullable(r.PosSize), nullable(r.RiskAmount),
		flag(r.TrendGated), flag(r.MomentumGated), flag(r.MeanRevGated), flag(r.BreakoutGated),
		r.BehaviorScore, r.BehaviorBias, r.Provider, r.Confidence, r.Fingerprint,
	}
}

func tradeValues(e *models.TradeEvent) []any {
	return []any{
		e.TradeID, e.Timestamp.UTC(), e.Symbol, string(e.EventType), string(e.Side), e.Qty, e.EntryPrice,
		nullable(e.ClosePrice), nullable(e.StopPrice), nullable(e.PnL), e.Reason,
	}
}

func accountValues(s *models.AccountSnapshot) []any {
	var side any
	if s.PositionSide != nil {
		side = string(*s.PositionSide)
	}
	return []any{
		s.Timestamp.UTC(), s.Symbol, s.Equity, s.Balance,
		side, nullable(s.PositionQty), nullable(s.PositionEntry), nullable(s.PositionStop),
	}
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func flag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func jsonList(xs []string) string {
	if xs == nil {
		xs = []string{}
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

// Read-back projections shared by both backends.
const (
	decisionSelect = "SELECT timestamp, COALESCE(symbol, ''), price, COALESCE(tf, ''), COALESCE(aggregate_s, 0), confirm_s, " +
		"COALESCE(decision, ''), COALESCE(regime, ''), COALESCE(reasons_json, '[]'), COALESCE(providers, ''), " +
		"COALESCE(confidence, 0), COALESCE(fingerprint, '') FROM " + decisionsTable
	tradeSelect = "SELECT COALESCE(trade_id, ''), timestamp, symbol, event_type, COALESCE(side, ''), COALESCE(qty, 0), " +
		"COALESCE(entry_price, 0), close_price, stop_price, pnl, COALESCE(reason, '') FROM " + tradesTable
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (models.DecisionRecord, error) {
	var (
		r       models.DecisionRecord
		ts      scanTime
		reasons string
		action  string
		regime  string
		confirm nullFloat
	)
	if err := row.Scan(&ts, &r.Symbol, &r.Price, &r.TF, &r.AggregateS, &confirm, &action, &regime,
		&reasons, &r.Provider, &r.Confidence, &r.Fingerprint); err != nil {
		return r, fmt.Errorf("scan decision: %w", err)
	}
	r.Timestamp = ts.Time
	r.Decision = models.Action(action)
	r.Regime = models.Regime(regime)
	r.ConfirmS = confirm.ptr()
	_ = json.Unmarshal([]byte(reasons), &r.Reasons)
	return r, nil
}

func scanTrade(row rowScanner) (models.TradeEvent, error) {
	var (
		e                     models.TradeEvent
		ts                    scanTime
		eventType, side       string
		closePrice, stop, pnl nullFloat
	)
	if err := row.Scan(&e.TradeID, &ts, &e.Symbol, &eventType, &side, &e.Qty, &e.EntryPrice,
		&closePrice, &stop, &pnl, &e.Reason); err != nil {
		return e, fmt.Errorf("scan trade event: %w", err)
	}
	e.Timestamp = ts.Time
	e.EventType = models.EventType(eventType)
	e.Side = models.Side(side)
	e.ClosePrice, e.StopPrice, e.PnL = closePrice.ptr(), stop.ptr(), pnl.ptr()
	return e, nil
}

// scanTime accepts SQLite's text timestamps and ClickHouse's DateTime64.
type scanTime struct{ time.Time }

func (t *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (t *scanTime) parse(s string) error {
	p, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = p.UTC()
	return nil
}

type nullFloat struct {
	v     float64
	valid bool
}

func (n *nullFloat) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.valid = false
	case float64:
		n.v, n.valid = v, true
	case *float64:
		if v != nil {
			n.v, n.valid = *v, true
		}
	case int64:
		n.v, n.valid = float64(v), true
	default:
		return fmt.Errorf("unsupported float type %T", src)
	}
	return nil
}

func (n nullFloat) ptr() *float64 {
	if !n.valid {
		return nil
	}
	v := n.v
	return &v
}

var _ driver.Valuer = sqliteTime{}

// sqliteTime stores timestamps as RFC3339 text, matching existing journals.
type sqliteTime time.Time

func (t sqliteTime) Value() (driver.Value, error) {
	return time.Time(t).UTC().Format(time.RFC3339Nano), nil
}
