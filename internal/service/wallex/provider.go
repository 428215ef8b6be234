// Package wallex reads candles and tickers from the Wallex public API.
package wallex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/service/ratelimit"
	"SmartTrader/pkg/util"
)

const Name = "wallex"

// Provider implements domain MarketProvider for Wallex (TMN quotes).
type Provider struct {
	client *ratelimit.Client
	now    func() time.Time
}

func New(client *ratelimit.Client) *Provider {
	return &Provider{client: client, now: time.Now}
}

func (p *Provider) Name() string { return Name }

// GetCandles asks the UDF history endpoint for a window wide enough to
// hold limit bars plus a small margin, then keeps the newest limit bars.
func (p *Provider) GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("wallex candles: limit must be positive")
	}
	to := p.now().Unix()
	from := to - int64(tf.Minutes())*60*int64(limit+5)

	body, err := p.client.Get(ctx, "v1/udf/history", url.Values{
		"symbol":     {symbol},
		"resolution": {string(tf)},
		"from":       {strconv.FormatInt(from, 10)},
		"to":         {strconv.FormatInt(to, 10)},
	})
	if err != nil {
		return nil, fmt.Errorf("wallex candles: %w", err)
	}
	candles, err := ParseHistory(body)
	if err != nil {
		return nil, fmt.Errorf("wallex candles: %w", err)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// ParseHistory decodes a UDF history payload. Array items may be numbers
// or numeric strings; bars with an unparsable field are skipped.
func ParseHistory(body []byte) ([]models.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json")
	}
	root := gjson.ParseBytes(body)
	switch status := root.Get("s").String(); status {
	case "ok":
	case "no_data":
		return nil, nil
	default:
		msg := root.Get("errmsg").String()
		return nil, fmt.Errorf("udf status %q %s", status, msg)
	}

	ts := root.Get("t").Array()
	o, h, l, c := root.Get("o").Array(), root.Get("h").Array(), root.Get("l").Array(), root.Get("c").Array()
	v := root.Get("v").Array()
	n := min(len(ts), len(o), len(h), len(l), len(c))

	out := make([]models.Candle, 0, n)
	for i := range n {
		t, ok1 := number(ts[i])
		op, ok2 := number(o[i])
		hi, ok3 := number(h[i])
		lo, ok4 := number(l[i])
		cl, ok5 := number(c[i])
		if !(ok1 && ok2 && ok3 && ok4 && ok5) {
			continue
		}
		vol := 0.0
		if i < len(v) {
			vol, _ = number(v[i])
		}
		out = append(out, models.Candle{
			Time: int64(t), Open: op, High: hi, Low: lo, Close: cl, Volume: vol,
		}.Normalize())
	}
	return out, nil
}

// GetTicker reads the last traded price from the markets listing.
func (p *Provider) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	body, err := p.client.Get(ctx, "v1/markets", nil)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("wallex ticker: %w", err)
	}
	stats := gjson.GetBytes(body, "result.symbols."+gjson.Escape(symbol)+".stats")
	last, ok := number(stats.Get("lastPrice"))
	if !ok || last <= 0 {
		return models.Ticker{}, fmt.Errorf("wallex ticker %s: %w", symbol, domrepo.ErrNoData)
	}
	return models.Ticker{Last: last, Close: last}, nil
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		return util.ParseFloat(r.Str)
	default:
		return 0, false
	}
}
