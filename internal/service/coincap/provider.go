// Package coincap is the last-resort USD provider and the optional live
// price stream.
package coincap

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/service/ratelimit"
	"SmartTrader/pkg/util"
)

const Name = "coincap"

type Provider struct {
	client *ratelimit.Client
}

func New(client *ratelimit.Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return Name }

// Interval maps a timeframe to the history interval; unknown ones use h1.
func Interval(tf domrepo.Timeframe) string {
	switch tf {
	case domrepo.TF1:
		return "m1"
	case domrepo.TF5:
		return "m5"
	case domrepo.TF15:
		return "m15"
	case domrepo.TF30:
		return "m30"
	case domrepo.TF60:
		return "h1"
	case domrepo.TF240:
		return "h4"
	case domrepo.TFDay:
		return "d1"
	default:
		return "h1"
	}
}

// GetCandles turns price history points into flat candles (o=h=l=c=priceUsd).
func (p *Provider) GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	id := models.AssetID(symbol)
	body, err := p.client.Get(ctx, "assets/"+id+"/history", url.Values{"interval": {Interval(tf)}})
	if err != nil {
		return nil, fmt.Errorf("coincap candles: %w", err)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("coincap candles: %w", domrepo.ErrNoData)
	}
	points := data.Array()
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	out := make([]models.Candle, 0, len(points))
	for _, pt := range points {
		price, ok := util.ParseFloat(pt.Get("priceUsd").String())
		if !ok {
			continue
		}
		vol, _ := util.ParseFloat(pt.Get("volumeUsd").String())
		out = append(out, models.Candle{
			Time: pt.Get("time").Int() / 1000,
			Open: price, High: price, Low: price, Close: price,
			Volume: vol,
		})
	}
	return out, nil
}

func (p *Provider) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	id := models.AssetID(symbol)
	body, err := p.client.Get(ctx, "assets/"+id, nil)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("coincap ticker: %w", err)
	}
	price, ok := util.ParseFloat(gjson.GetBytes(body, "data.priceUsd").String())
	if !ok || price <= 0 {
		return models.Ticker{}, fmt.Errorf("coincap ticker %s: %w", id, domrepo.ErrNoData)
	}
	return models.Ticker{Last: price, Close: price}, nil
}
