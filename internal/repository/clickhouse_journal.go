package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	pkgch "SmartTrader/pkg/clickhouse"
	"SmartTrader/pkg/logger"
)

var (
	_ domrepo.Journal         = (*ClickHouseJournal)(nil)
	_ domrepo.DecisionHistory = (*ClickHouseJournal)(nil)
)

// ClickHouseJournal writes the journal to MergeTree tables for analytics.
type ClickHouseJournal struct {
	client *pkgch.Client
	db     *sql.DB
	log    *logger.Logger
}

func NewClickHouseJournal(ch *pkgch.Client, log *logger.Logger) *ClickHouseJournal {
	return &ClickHouseJournal{client: ch, db: ch.DB(), log: log}
}

// Init creates the tables and adds any missing columns.
func (j *ClickHouseJournal) Init(ctx context.Context) error {
	var stmts []string
	for _, t := range []struct {
		name string
		cols []column
	}{
		{decisionsTable, decisionColumns},
		{tradesTable, tradeColumns},
		{accountTable, accountColumns},
	} {
		stmts = append(stmts, clickhouseDDL(t.name, t.cols)...)
	}
	if err := j.client.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("clickhouse journal: %w", err)
	}
	return nil
}

func clickhouseDDL(table string, cols []column) []string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.name + " " + c.clickhouse
	}
	stmts := []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree PARTITION BY toYYYYMM(timestamp) ORDER BY (symbol, timestamp)",
		table, strings.Join(defs, ", "))}
	for _, c := range cols {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, c.name, c.clickhouse))
	}
	return stmts
}

func (j *ClickHouseJournal) insert(ctx context.Context, table string, cols []column, vals []any) error {
	start := time.Now()
	if _, err := j.db.ExecContext(ctx, insertSQL(table, cols), vals...); err != nil {
		return fmt.Errorf("clickhouse insert %s: %w", table, err)
	}
	j.log.Debug("clickhouse insert ok",
		logger.String("table", table),
		logger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (j *ClickHouseJournal) SaveDecision(ctx context.Context, rec *models.DecisionRecord) error {
	return j.insert(ctx, decisionsTable, decisionColumns, decisionValues(rec))
}

func (j *ClickHouseJournal) SaveTradeEvent(ctx context.Context, ev *models.TradeEvent) error {
	return j.insert(ctx, tradesTable, tradeColumns, tradeValues(ev))
}

func (j *ClickHouseJournal) SaveAccountSnapshot(ctx context.Context, snap *models.AccountSnapshot) error {
	return j.insert(ctx, accountTable, accountColumns, accountValues(snap))
}

func (j *ClickHouseJournal) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.DecisionRecord, error) {
	rows, err := j.db.QueryContext(ctx, decisionSelect+" WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?", symbol, limit)
	if err != nil {
		j.log.Error("clickhouse recent decisions query error", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	defer rows.Close()

	out := make([]models.DecisionRecord, 0, limit)
	for rows.Next() {
		r, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *ClickHouseJournal) RecentTradeEvents(ctx context.Context, symbol string, limit int) ([]models.TradeEvent, error) {
	rows, err := j.db.QueryContext(ctx, tradeSelect+" WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?", symbol, limit)
	if err != nil {
		j.log.Error("clickhouse recent trades query error", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("recent trade events: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeEvent, 0, limit)
	for rows.Next() {
		e, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *ClickHouseJournal) Health(ctx context.Context) error {
	return j.client.Health(ctx)
}

func (j *ClickHouseJournal) Close() error {
	return j.client.Close()
}
