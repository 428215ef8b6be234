package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/pkg/logger"
)

var (
	_ domrepo.Journal         = (*SQLiteJournal)(nil)
	_ domrepo.DecisionHistory = (*SQLiteJournal)(nil)
)

// SQLiteJournal is the default local journal.
type SQLiteJournal struct {
	db  *sql.DB
	log *logger.Logger
}

func NewSQLiteJournal(path string, log *logger.Logger) (*SQLiteJournal, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// a single writer keeps SQLite free of SQLITE_BUSY between goroutines
	db.SetMaxOpenConns(1)
	return &SQLiteJournal{db: db, log: log}, nil
}

// Init creates missing tables and adds missing columns to existing ones.
// Columns are never dropped or retyped.
func (j *SQLiteJournal) Init(ctx context.Context) error {
	for _, t := range []struct {
		name string
		cols []column
	}{
		{decisionsTable, decisionColumns},
		{tradesTable, tradeColumns},
		{accountTable, accountColumns},
	} {
		if err := j.ensureTable(ctx, t.name, t.cols); err != nil {
			return fmt.Errorf("sqlite init %s: %w", t.name, err)
		}
	}
	return nil
}

func (j *SQLiteJournal) ensureTable(ctx context.Context, table string, cols []column) error {
	defs := []string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range cols {
		defs = append(defs, c.name+" "+c.sqlite)
	}
	if _, err := j.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return err
	}

	existing, err := j.columns(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if existing[c.name] {
			continue
		}
		// SQLite refuses ADD COLUMN ... NOT NULL without a default.
		typ := strings.TrimSuffix(c.sqlite, " NOT NULL")
		if _, err := j.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.name, typ)); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
		j.log.Warn("journal column added",
			logger.String("table", table),
			logger.String("column", c.name))
	}
	return nil
}

func (j *SQLiteJournal) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := j.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) insert(ctx context.Context, table string, cols []column, vals []any) error {
	for i, v := range vals {
		if t, ok := v.(time.Time); ok {
			vals[i] = sqliteTime(t)
		}
	}
	if _, err := j.db.ExecContext(ctx, insertSQL(table, cols), vals...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (j *SQLiteJournal) SaveDecision(ctx context.Context, rec *models.DecisionRecord) error {
	return j.insert(ctx, decisionsTable, decisionColumns, decisionValues(rec))
}

func (j *SQLiteJournal) SaveTradeEvent(ctx context.Context, ev *models.TradeEvent) error {
	return j.insert(ctx, tradesTable, tradeColumns, tradeValues(ev))
}

func (j *SQLiteJournal) SaveAccountSnapshot(ctx context.Context, snap *models.AccountSnapshot) error {
	return j.insert(ctx, accountTable, accountColumns, accountValues(snap))
}

func (j *SQLiteJournal) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.DecisionRecord, error) {
	rows, err := j.db.QueryContext(ctx, decisionSelect+" WHERE symbol = ? ORDER BY id DESC LIMIT ?", symbol, limit)
	if err != nil {
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

func (j *SQLiteJournal) RecentTradeEvents(ctx context.Context, symbol string, limit int) ([]models.TradeEvent, error) {
	rows, err := j.db.QueryContext(ctx, tradeSelect+" WHERE symbol = ? ORDER BY id DESC LIMIT ?", symbol, limit)
	if err != nil {
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

func (j *SQLiteJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
