package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SmartTrader/internal/domain/models"
)

type Config struct {
	Environment string `yaml:"environment" default:"prod" validate:"required"`
	Server      struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated warn/error logs are shipped to Kafka when enabled.
		CollectToKafka bool          `yaml:"collect_to_kafka"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
	} `yaml:"log"`
	Trader    TraderConfig          `yaml:"trader"`
	Strategy  models.StrategyParams `yaml:"strategy"`
	Wallex    ProviderConfig        `yaml:"wallex"`
	CoinGecko ProviderConfig        `yaml:"coingecko"`
	CoinCap   CoinCapConfig         `yaml:"coincap"`
	Telegram  struct {
		Enabled  bool          `yaml:"enabled" default:"true"`
		BotToken string        `yaml:"bot_token"`
		ChatID   string        `yaml:"chat_id"`
		MinLevel string        `yaml:"min_level" default:"INFO" validate:"oneof=DEBUG INFO WARNING ERROR"`
		BaseURL  string        `yaml:"base_url" default:"https://api.telegram.org"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"telegram"`
	Journal struct {
		Backend    string `yaml:"backend" default:"sqlite" validate:"oneof=sqlite clickhouse"`
		SQLitePath string `yaml:"sqlite_path" default:"trading_data.db"`
	} `yaml:"journal"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"default"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled        bool          `yaml:"enabled"`
		Brokers        []string      `yaml:"brokers"`
		DecisionsTopic string        `yaml:"decisions_topic" default:"trader.decisions"`
		TradesTopic    string        `yaml:"trades_topic" default:"trader.trades"`
		LogsTopic      string        `yaml:"logs_topic" default:"trader.logs"`
		RequiredAcks   int           `yaml:"required_acks" default:"1"`
		Compression    string        `yaml:"compression" default:"snappy"`
		MaxAttempts    int           `yaml:"max_attempts" default:"3"`
		WriteTimeout   time.Duration `yaml:"write_timeout" default:"5s"`
		Async          bool          `yaml:"async"`
	} `yaml:"kafka"`
	Cache struct {
		Backend string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
		TTL     time.Duration `yaml:"ttl" default:"24h"`
		Redis   struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"smarttrader"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

type TraderConfig struct {
	Symbol            string        `yaml:"symbol" default:"BTCTMN" validate:"required"`
	PrimaryTF         string        `yaml:"primary_tf" default:"240" validate:"oneof=1 5 15 30 60 240 D"`
	ConfirmTF         string        `yaml:"confirm_tf" default:"60" validate:"omitempty,oneof=1 5 15 30 60 240 D"`
	MaxCandlesPrimary int           `yaml:"max_candles_primary" default:"2200" validate:"min=1"`
	MaxCandlesConfirm int           `yaml:"max_candles_confirm" default:"600" validate:"min=1"`
	PollInterval      time.Duration `yaml:"poll_interval" default:"12s"`
	MinTradeValue     float64       `yaml:"min_trade_value" default:"100000" validate:"gte=0"`
	StartEquity       float64       `yaml:"start_equity" default:"100000000" validate:"gt=0"`
	RequiredProvider  string        `yaml:"required_provider" validate:"omitempty,oneof=wallex coingecko coincap"`
	LockTTL           time.Duration `yaml:"lock_ttl" default:"1m"`
}

type ProviderConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
	Retries         int           `yaml:"retries" default:"3" validate:"gte=0"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" default:"4" validate:"gte=0"`
}

type CoinCapConfig struct {
	ProviderConfig `yaml:",inline"`
	StreamEnabled  bool          `yaml:"stream_enabled"`
	StreamURL      string        `yaml:"stream_url" default:"wss://ws.coincap.io/prices"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
}

// Default returns a config populated purely from struct-tag defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if c.Wallex.BaseURL == "" {
		c.Wallex.BaseURL = "https://api.wallex.ir"
	}
	if c.CoinGecko.BaseURL == "" {
		c.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.CoinCap.BaseURL == "" {
		c.CoinCap.BaseURL = "https://api.coincap.io/v2"
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present) and the YAML file, then applies
// environment overrides and validates again.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	e := envReader{}
	e.str("ENV", &c.Environment)
	e.str("LOG_LEVEL", &c.Log.Level)
	if c.Log.Level != "" {
		c.Log.Level = strings.ToLower(c.Log.Level)
		if c.Log.Level == "warning" {
			c.Log.Level = "warn"
		}
	}

	e.str("SYMBOL", &c.Trader.Symbol)
	e.str("PRIMARY_TF", &c.Trader.PrimaryTF)
	e.str("CONFIRM_TF", &c.Trader.ConfirmTF)
	e.integer("MAX_CANDLES_PRIMARY", &c.Trader.MaxCandlesPrimary)
	e.integer("MAX_CANDLES_CONFIRM", &c.Trader.MaxCandlesConfirm)
	e.seconds("LIVE_POLL_SECONDS", &c.Trader.PollInterval)
	e.float("MIN_TRADE_VALUE", &c.Trader.MinTradeValue)
	e.float("START_EQUITY", &c.Trader.StartEquity)
	e.str("REQUIRED_PROVIDER", &c.Trader.RequiredProvider)

	s := &c.Strategy
	e.boolean("ALLOW_INTRACANDLE", &s.AllowIntracandle)
	e.float("W_TREND", &s.Weights.Trend)
	e.float("W_MOMENTUM", &s.Weights.Momentum)
	e.float("W_MEANREV", &s.Weights.MeanRev)
	e.float("W_BREAKOUT", &s.Weights.Breakout)
	e.float("W_BEHAVIOR", &s.Weights.Behavior)
	e.float("S_BUY", &s.BuyThreshold)
	e.float("S_SELL", &s.SellThreshold)
	e.float("MIN_ADX_FOR_TREND", &s.MinADXForTrend)
	e.boolean("REQUIRE_MTF_AGREEMENT", &s.RequireMTFAgreement)
	e.float("REGIME_SCALE_LOW", &s.RegimeScale.Low)
	e.float("REGIME_SCALE_NEUTRAL", &s.RegimeScale.Neutral)
	e.float("REGIME_SCALE_HIGH", &s.RegimeScale.High)
	e.float("DECISION_BUFFER", &s.DecisionBuffer)
	e.float("MTF_CONFIRM_BAR", &s.MTFConfirmBar)
	e.float("MIN_VR_TRADE", &s.MinVRTrade)
	e.float("MIN_VR_INTRACANDLE", &s.MinVRIntracandle)
	e.float("VR_ADAPT_K", &s.VRAdaptK)
	e.float("VR_ADAPT_CLAMP", &s.VRAdaptClamp)
	e.boolean("IMPULSE_ONLY_HIGH", &s.ImpulseOnlyHigh)
	e.float("ATR_STOP_MULT", &s.ATRStopMult)
	e.float("RISK_PER_TRADE", &s.MaxRiskPerTrade)

	e.boolean("TELEGRAM_ENABLED", &c.Telegram.Enabled)
	e.str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	e.str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	e.str("TELEGRAM_MIN_LEVEL", &c.Telegram.MinLevel)
	c.Telegram.MinLevel = strings.ToUpper(c.Telegram.MinLevel)

	e.str("WALLEX_BASE_URL", &c.Wallex.BaseURL)
	e.str("WALLEX_API_KEY", &c.Wallex.APIKey)
	e.seconds("WALLEX_TIMEOUT", &c.Wallex.Timeout)
	e.integer("WALLEX_RETRIES", &c.Wallex.Retries)
	e.float("WALLEX_RATE_LIMIT_PER_SEC", &c.Wallex.RateLimitPerSec)

	e.str("DATABASE_PATH", &c.Journal.SQLitePath)
	e.str("JOURNAL_BACKEND", &c.Journal.Backend)
	e.list("KAFKA_BROKERS", &c.Kafka.Brokers)
	if len(c.Kafka.Brokers) > 0 && os.Getenv("KAFKA_BROKERS") != "" {
		c.Kafka.Enabled = true
	}
	e.str("REDIS_ADDR", &c.Cache.Redis.Addr)
	e.str("CACHE_BACKEND", &c.Cache.Backend)

	return e.err
}

// Validate checks struct-tag constraints, strategy params and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.Trader.PollInterval <= 0 {
		return fmt.Errorf("trader.poll_interval must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Log.CollectToKafka && !c.Kafka.Enabled {
		return fmt.Errorf("log.collect_to_kafka requires kafka.enabled")
	}
	return nil
}

// envReader applies environment overrides and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != "" && e.err == nil
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	if v, ok := e.lookup(name); ok {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) seconds(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.err = fmt.Errorf("%s: %w", name, err)
			return
		}
		*dst = time.Duration(f * float64(time.Second))
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			*dst = true
		default:
			*dst = false
		}
	}
}
