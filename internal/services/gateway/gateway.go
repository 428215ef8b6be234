// Package gateway fronts the market-data providers with ordered fallback.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/pkg/logger"
)

// ConfidenceStep is the confidence lost per fallback position.
const ConfidenceStep = 0.2

type Gateway struct {
	providers []domrepo.MarketProvider
	metrics   domrepo.Metrics
	log       *logger.Logger
}

// New keeps providers in the given order; the first is the primary source.
func New(providers []domrepo.MarketProvider, metrics domrepo.Metrics, log *logger.Logger) *Gateway {
	return &Gateway{providers: providers, metrics: metrics, log: log}
}

func (g *Gateway) Providers() []string {
	out := make([]string, len(g.providers))
	for i, p := range g.providers {
		out[i] = p.Name()
	}
	return out
}

// GetCandles returns the first non-empty candle set. required restricts the
// chain to one provider by name.
func (g *Gateway) GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int, required string) models.MarketDataResponse {
	candles, resp := fetch(ctx, g, "candles", required, func(ctx context.Context, p domrepo.MarketProvider) ([]models.Candle, error) {
		c, err := p.GetCandles(ctx, symbol, tf, limit)
		if err == nil && len(c) == 0 {
			err = domrepo.ErrNoData
		}
		return c, err
	})
	resp.Candles = candles
	return resp
}

// GetTicker follows the same fallback contract as GetCandles.
func (g *Gateway) GetTicker(ctx context.Context, symbol string, required string) models.MarketDataResponse {
	tk, resp := fetch(ctx, g, "ticker", required, func(ctx context.Context, p domrepo.MarketProvider) (*models.Ticker, error) {
		t, err := p.GetTicker(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if t.Price() <= 0 || math.IsNaN(t.Price()) {
			return nil, domrepo.ErrNoData
		}
		return &t, nil
	})
	resp.Ticker = tk
	return resp
}

func (g *Gateway) chain(required string) ([]domrepo.MarketProvider, error) {
	if required == "" {
		return g.providers, nil
	}
	for _, p := range g.providers {
		if strings.EqualFold(p.Name(), required) {
			return []domrepo.MarketProvider{p}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domrepo.ErrUnknownProvider, required)
}

func fetch[T any](ctx context.Context, g *Gateway, kind, required string, call func(context.Context, domrepo.MarketProvider) (T, error)) (T, models.MarketDataResponse) {
	var zero T
	resp := models.MarketDataResponse{FallbackUsed: true}

	chain, err := g.chain(required)
	if err != nil {
		resp.Err = err
		g.metrics.RecordFallback(kind, 0)
		return zero, resp
	}

	var msgs []string
	for i, p := range chain {
		start := time.Now()
		v, err := call(ctx, p)
		g.metrics.RecordLatency("provider_"+kind+"_"+p.Name(), time.Since(start).Seconds())
		g.metrics.RecordProviderResult(p.Name(), kind, err == nil)
		if err == nil {
			resp.Provider = p.Name()
			resp.Confidence = math.Max(0, 1-float64(i)*ConfidenceStep)
			resp.FallbackUsed = i > 0
			resp.Attempts = append(resp.Attempts, models.ProviderAttempt{Provider: p.Name()})
			g.metrics.RecordFallback(kind, resp.Confidence)
			if resp.FallbackUsed {
				g.log.Warn("market data served by fallback provider",
					logger.String("kind", kind),
					logger.String("provider", p.Name()),
					logger.Float64("confidence", resp.Confidence))
			}
			return v, resp
		}
		resp.Attempts = append(resp.Attempts, models.ProviderAttempt{Provider: p.Name(), Err: err.Error()})
		msgs = append(msgs, p.Name()+": "+err.Error())
		g.log.Warn("market data provider failed",
			logger.String("kind", kind),
			logger.String("provider", p.Name()),
			logger.Error(err))
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}

	resp.Err = fmt.Errorf("%s: %w: %s", kind, domrepo.ErrAllProvidersFailed, strings.Join(msgs, "; "))
	g.metrics.RecordFallback(kind, 0)
	return zero, resp
}
