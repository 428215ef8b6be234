//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SmartTrader/pkg/config"
	"SmartTrader/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideJournalStore,
	ProvideJournal,
	ProvideDecisionHistory,
	ProvideEventPublisher,
	ProvideCache,
	ProvideStateStore,
)

var marketSet = wire.NewSet(
	ProvideMarketProviders,
	ProvideGateway,
	ProvidePricePipeline,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		marketSet,
		ProvideEngine,
		ProvideAccount,
		ProvideNotifier,
		ProvideTrader,
		ProvideStatusHandler,
		ProvideHTTPServer,
		ProvideClosers,
		ProvideApp,
	)
	return &server.App{}, nil
}
