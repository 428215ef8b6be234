package repository

import (
	"context"
	"time"

	"SmartTrader/internal/domain/models"
)

// MarketProvider is one market-data source behind the gateway.
type MarketProvider interface {
	Name() string
	GetCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
	GetTicker(ctx context.Context, symbol string) (models.Ticker, error)
}

// PriceStream pushes live prices from a provider's websocket feed.
type PriceStream interface {
	Provider() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Journal persists cycle outputs. Init creates or migrates the schema.
type Journal interface {
	Init(ctx context.Context) error
	SaveDecision(ctx context.Context, rec *models.DecisionRecord) error
	SaveTradeEvent(ctx context.Context, ev *models.TradeEvent) error
	SaveAccountSnapshot(ctx context.Context, snap *models.AccountSnapshot) error
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher fans cycle outputs out to a message bus.
type EventPublisher interface {
	PublishDecision(ctx context.Context, rec *models.DecisionRecord) error
	PublishTradeEvent(ctx context.Context, ev *models.TradeEvent) error
	Close() error
}

// Notifier delivers human-readable messages (Telegram).
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, text string) error
	SendAnalysis(ctx context.Context, report string) error
}

// StateStore keeps the latest account/decision snapshot and a per-symbol
// single-writer lock. Load methods return (nil, nil) when nothing is stored.
type StateStore interface {
	SaveAccount(ctx context.Context, snap *models.AccountSnapshot) error
	LoadAccount(ctx context.Context, symbol string) (*models.AccountSnapshot, error)
	SaveLastDecision(ctx context.Context, rec *models.DecisionRecord) error
	LoadLastDecision(ctx context.Context, symbol string) (*models.DecisionRecord, error)
	AcquireLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, symbol string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, symbol string) error
}

type Metrics interface {
	RecordCycle(symbol, outcome string, seconds float64)
	RecordDecision(symbol string, action models.Action)
	RecordProviderResult(provider, kind string, ok bool)
	RecordFallback(kind string, confidence float64)
	RecordTradeEvent(symbol string, eventType models.EventType, reason string)
	RecordEquity(symbol string, equity, balance float64)
	RecordMessageSent(backend, kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
