package repository

import (
	"context"

	"SmartTrader/internal/domain/models"
)

// DecisionHistory provides read-only access to journaled cycles for the status API.
type DecisionHistory interface {
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.DecisionRecord, error)
	RecentTradeEvents(ctx context.Context, symbol string, limit int) ([]models.TradeEvent, error)
}
