// Package coingecko is the first USD fallback for candles and tickers.
package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/service/ratelimit"
)

const Name = "coingecko"

type Provider struct {
	client *ratelimit.Client
}

func New(client *ratelimit.Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return Name }

// Days converts a bar count into the OHLC "days" query, within [1, 365].
func Days(limit int) int {
	return min(max(1, limit/1440), 365)
}

// GetCandles reads /coins/{id}/ohlc. Rows are [ms, o, h, l, c] without volume;
// the endpoint picks its own granularity from the day span, so tf is informational.
func (p *Provider) GetCandles(ctx context.Context, symbol string, _ domrepo.Timeframe, limit int) ([]models.Candle, error) {
	id := models.AssetID(symbol)
	body, err := p.client.Get(ctx, "coins/"+id+"/ohlc", url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(Days(limit))},
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko candles: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("coingecko candles: invalid json")
	}
	rows := gjson.ParseBytes(body).Array()
	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		f := row.Array()
		if len(f) < 5 {
			continue
		}
		out = append(out, models.Candle{
			Time:  f[0].Int() / 1000,
			Open:  f[1].Float(),
			High:  f[2].Float(),
			Low:   f[3].Float(),
			Close: f[4].Float(),
		}.Normalize())
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (p *Provider) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	id := models.AssetID(symbol)
	var quotes map[string]map[string]float64
	if err := p.client.GetJSON(ctx, "simple/price", url.Values{"ids": {id}, "vs_currencies": {"usd"}}, &quotes); err != nil {
		return models.Ticker{}, fmt.Errorf("coingecko ticker: %w", err)
	}
	price := quotes[id]["usd"]
	if price <= 0 {
		return models.Ticker{}, fmt.Errorf("coingecko ticker %s: %w", id, domrepo.ErrNoData)
	}
	return models.Ticker{Last: price, Close: price}, nil
}
