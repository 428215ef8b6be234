package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/pkg/logger"
	"SmartTrader/pkg/metrics"
)

type fakeProvider struct {
	name    string
	candles []models.Candle
	ticker  models.Ticker
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetCandles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	f.calls++
	return f.candles, f.err
}

func (f *fakeProvider) GetTicker(context.Context, string) (models.Ticker, error) {
	f.calls++
	return f.ticker, f.err
}

func bars(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Time: int64(i), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return out
}

func newGateway(ps ...*fakeProvider) *Gateway {
	list := make([]domrepo.MarketProvider, len(ps))
	for i, p := range ps {
		list[i] = p
	}
	return New(list, metrics.Nop{}, logger.Nop())
}

func TestPrimarySuccess(t *testing.T) {
	w := &fakeProvider{name: "wallex", candles: bars(3)}
	cg := &fakeProvider{name: "coingecko", candles: bars(2)}
	g := newGateway(w, cg)

	resp := g.GetCandles(context.Background(), "BTCTMN", domrepo.TF240, 3, "")
	require.NoError(t, resp.Err)
	assert.Equal(t, "wallex", resp.Provider)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.False(t, resp.FallbackUsed)
	assert.Len(t, resp.Candles, 3)
	assert.Equal(t, 0, cg.calls)
}

func TestFallbackLowersConfidence(t *testing.T) {
	w := &fakeProvider{name: "wallex", err: errors.New("timeout")}
	cg := &fakeProvider{name: "coingecko"} // empty result counts as failure
	cc := &fakeProvider{name: "coincap", candles: bars(5)}
	g := newGateway(w, cg, cc)

	resp := g.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 5, "")
	require.NoError(t, resp.Err)
	assert.Equal(t, "coincap", resp.Provider)
	assert.InDelta(t, 0.6, resp.Confidence, 1e-12)
	assert.True(t, resp.FallbackUsed)
	require.Len(t, resp.Attempts, 3)
	assert.Contains(t, resp.Attempts[1].Err, "no data")
}

func TestAllProvidersFail(t *testing.T) {
	g := newGateway(
		&fakeProvider{name: "wallex", err: errors.New("boom")},
		&fakeProvider{name: "coingecko", err: errors.New("429")},
		&fakeProvider{name: "coincap", err: errors.New("dns")},
	)

	resp := g.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 5, "")
	assert.Empty(t, resp.Candles)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.True(t, resp.FallbackUsed)
	require.Error(t, resp.Err)
	assert.True(t, errors.Is(resp.Err, domrepo.ErrAllProvidersFailed))
	for _, part := range []string{"wallex: boom", "coingecko: 429", "coincap: dns"} {
		assert.Contains(t, resp.Err.Error(), part)
	}
}

func TestRequiredProviderOnly(t *testing.T) {
	w := &fakeProvider{name: "wallex", candles: bars(1)}
	cc := &fakeProvider{name: "coincap", candles: bars(2)}
	g := newGateway(w, cc)

	resp := g.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 2, "coincap")
	require.NoError(t, resp.Err)
	assert.Equal(t, "coincap", resp.Provider)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.Equal(t, 0, w.calls)

	cc.err = errors.New("down")
	resp = g.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 2, "coincap")
	assert.Error(t, resp.Err)
	assert.Equal(t, 0, w.calls, "required provider failure does not fall back")

	resp = g.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 2, "binance")
	assert.ErrorIs(t, resp.Err, domrepo.ErrUnknownProvider)
}

func TestTickerFallback(t *testing.T) {
	g := newGateway(
		&fakeProvider{name: "wallex", ticker: models.Ticker{}},
		&fakeProvider{name: "coingecko", ticker: models.Ticker{Last: 42, Close: 42}},
	)
	resp := g.GetTicker(context.Background(), "BTCTMN", "")
	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Ticker)
	assert.Equal(t, 42.0, resp.Ticker.Price())
	assert.InDelta(t, 0.8, resp.Confidence, 1e-12)
	assert.True(t, resp.OK())
}

func TestProvidersOrder(t *testing.T) {
	g := newGateway(&fakeProvider{name: "wallex"}, &fakeProvider{name: "coingecko"}, &fakeProvider{name: "coincap"})
	assert.Equal(t, []string{"wallex", "coingecko", "coincap"}, g.Providers())
}
