package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/handler/api"
	mid "SmartTrader/internal/middleware"
	internalrepo "SmartTrader/internal/repository"
	"SmartTrader/internal/service/coincap"
	"SmartTrader/internal/service/coingecko"
	"SmartTrader/internal/service/ratelimit"
	"SmartTrader/internal/service/telegram"
	"SmartTrader/internal/service/wallex"
	"SmartTrader/internal/services/account"
	"SmartTrader/internal/services/gateway"
	"SmartTrader/internal/services/signal"
	"SmartTrader/internal/usecase"
	"SmartTrader/pkg/cache"
	pkgch "SmartTrader/pkg/clickhouse"
	"SmartTrader/pkg/config"
	xhttp "SmartTrader/pkg/http"
	pkgkafka "SmartTrader/pkg/kafka"
	"SmartTrader/pkg/logger"
	"SmartTrader/pkg/metrics"
	"SmartTrader/pkg/server"
)

// JournalStore is a journal that can also answer history queries.
type JournalStore interface {
	domrepo.Journal
	domrepo.DecisionHistory
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger and, when configured, ships
// aggregated warn/error entries to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.CollectToKafka && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval: cfg.Log.FlushInterval,
			Topic:        cfg.Kafka.LogsTopic,
			MinLevel:     zerolog.WarnLevel,
			Publisher:    producer,
		})
	}
	return l, nil
}

func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient returns nil unless the journal backend is ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Journal.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func ProvideJournalStore(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) (JournalStore, error) {
	jl := log.With(logger.String("component", "journal"))
	switch cfg.Journal.Backend {
	case "clickhouse":
		return internalrepo.NewClickHouseJournal(ch, jl), nil
	default:
		j, err := internalrepo.NewSQLiteJournal(cfg.Journal.SQLitePath, jl)
		if err != nil {
			return nil, fmt.Errorf("sqlite journal: %w", err)
		}
		return j, nil
	}
}

func ProvideJournal(s JournalStore) domrepo.Journal { return s }

func ProvideDecisionHistory(s JournalStore) domrepo.DecisionHistory { return s }

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.DecisionsTopic, cfg.Kafka.TradesTopic)
}

// ProvideCache selects the state cache backend. layered keeps a short
// in-process copy in front of Redis.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	c := cfg.Cache
	if c.Backend == "memory" {
		return cache.NewMemoryCache(cache.WithMemoryDefaultTTL(c.TTL)), nil
	}
	redis, err := cache.NewRedisCache(
		cache.WithRedisAddr(c.Redis.Addr),
		cache.WithRedisPassword(c.Redis.Password),
		cache.WithRedisDB(c.Redis.DB),
		cache.WithRedisPrefix(c.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if c.Backend == "layered" {
		return cache.NewLayeredCache(redis, cfg.Trader.PollInterval), nil
	}
	return redis, nil
}

func ProvideStateStore(cfg *config.Config, c cache.Service) domrepo.StateStore {
	return internalrepo.NewCacheStateStore(c, cfg.Cache.TTL)
}

func providerClient(name string, pc config.ProviderConfig, m domrepo.Metrics, log *logger.Logger, opts ...ratelimit.Option) *ratelimit.Client {
	base := []ratelimit.Option{
		ratelimit.WithRate(pc.RateLimitPerSec),
		ratelimit.WithRetries(pc.Retries),
		ratelimit.WithTimeout(pc.Timeout),
		ratelimit.WithMetrics(m),
		ratelimit.WithLogger(log.With(logger.String("provider", name))),
		ratelimit.WithHTTPOptions(xhttp.WithUserAgent("SmartTrader/1.0")),
	}
	return ratelimit.NewClient(name, pc.BaseURL, append(base, opts...)...)
}

// ProvideMarketProviders returns the fallback chain in priority order.
func ProvideMarketProviders(cfg *config.Config, m domrepo.Metrics, log *logger.Logger) []domrepo.MarketProvider {
	return []domrepo.MarketProvider{
		wallex.New(providerClient(wallex.Name, cfg.Wallex, m, log,
			ratelimit.WithHeader("x-api-key", cfg.Wallex.APIKey))),
		coingecko.New(providerClient(coingecko.Name, cfg.CoinGecko, m, log,
			ratelimit.WithHeader("x-cg-demo-api-key", cfg.CoinGecko.APIKey))),
		coincap.New(providerClient(coincap.Name, cfg.CoinCap.ProviderConfig, m, log,
			ratelimit.WithHeader("Authorization", bearer(cfg.CoinCap.APIKey)))),
	}
}

func bearer(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}

func ProvideGateway(providers []domrepo.MarketProvider, m domrepo.Metrics, log *logger.Logger) *gateway.Gateway {
	return gateway.New(providers, m, log.With(logger.String("component", "gateway")))
}

func ProvideEngine(cfg *config.Config) (*signal.Engine, error) {
	return signal.NewEngine(cfg.Strategy)
}

func ProvideAccount(cfg *config.Config) *account.Account {
	return account.New(cfg.Trader.Symbol, cfg.Trader.StartEquity)
}

func ProvideNotifier(cfg *config.Config, m domrepo.Metrics, log *logger.Logger) *telegram.Notifier {
	t := cfg.Telegram
	return telegram.New(telegram.Config{
		Enabled:  t.Enabled,
		BaseURL:  t.BaseURL,
		BotToken: t.BotToken,
		ChatID:   t.ChatID,
		MinLevel: t.MinLevel,
	}, xhttp.NewClient(xhttp.WithTimeout(t.Timeout)), m, log.With(logger.String("component", "telegram")))
}

// ProvidePricePipeline returns nil unless the CoinCap stream is enabled.
func ProvidePricePipeline(cfg *config.Config, m domrepo.Metrics, log *logger.Logger) *mid.PricePipeline {
	if !cfg.CoinCap.StreamEnabled {
		return nil
	}
	sl := log.With(logger.String("component", "price_stream"))
	stream := coincap.NewStream(cfg.CoinCap.StreamURL, cfg.Trader.Symbol, cfg.CoinCap.ReconnectDelay, sl)
	return mid.NewPricePipeline(stream, m, sl)
}

func ProvideTrader(
	cfg *config.Config,
	gw *gateway.Gateway,
	engine *signal.Engine,
	acct *account.Account,
	journal domrepo.Journal,
	pub domrepo.EventPublisher,
	state domrepo.StateStore,
	notifier *telegram.Notifier,
	pipeline *mid.PricePipeline,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.Trader {
	tc := cfg.Trader
	set := usecase.Settings{
		Symbol:            tc.Symbol,
		PrimaryTF:         domrepo.NormalizeTimeframe(tc.PrimaryTF),
		MaxCandlesPrimary: tc.MaxCandlesPrimary,
		MaxCandlesConfirm: tc.MaxCandlesConfirm,
		PollInterval:      tc.PollInterval,
		MinTradeValue:     tc.MinTradeValue,
		RequiredProvider:  tc.RequiredProvider,
		LockTTL:           tc.LockTTL,
	}
	if tc.ConfirmTF != "" {
		set.ConfirmTF = domrepo.NormalizeTimeframe(tc.ConfirmTF)
	}
	var opts []usecase.TraderOption
	if pipeline != nil {
		// a tick older than two poll intervals is treated as stale
		opts = append(opts, usecase.WithLivePrices(pipeline, coincap.Name, 2*tc.PollInterval))
	}
	return usecase.NewTrader(set, gw, engine, acct, journal, pub, state, notifier, m,
		log.With(logger.String("component", "trader")), opts...)
}

func ProvideStatusHandler(cfg *config.Config, log *logger.Logger, journal domrepo.Journal, history domrepo.DecisionHistory, state domrepo.StateStore) *api.StatusHandler {
	return api.NewStatusHandler(log.With(logger.String("component", "status_api")), cfg.Trader.Symbol, journal, history, state)
}

// ProvideHTTPServer returns nil when the status server is disabled.
func ProvideHTTPServer(cfg *config.Config, h *api.StatusHandler, log *logger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer(h, log.With(logger.String("component", "http")), opts...)
}

// ProvideClosers orders shutdown so the log collector flushes through the
// producer before the publisher closes it.
func ProvideClosers(log *logger.Logger, pub domrepo.EventPublisher, journal domrepo.Journal, c cache.Service) []server.Closer {
	return []server.Closer{
		{Name: "log_collector", Close: func() error { log.RemoveCollector(); return nil }},
		{Name: "publisher", Close: pub.Close},
		{Name: "journal", Close: journal.Close},
		{Name: "cache", Close: c.Close},
	}
}

func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	trader *usecase.Trader,
	journal domrepo.Journal,
	pipeline *mid.PricePipeline,
	notifier *telegram.Notifier,
	httpServer *xhttp.Server,
	closers []server.Closer,
) *server.App {
	return server.New(cfg, log, trader, journal, pipeline, notifier, httpServer, closers)
}
