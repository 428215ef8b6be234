package coincap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/service/ratelimit"
	"SmartTrader/pkg/logger"
)

func newProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(ratelimit.NewClient(Name, srv.URL, ratelimit.WithRate(1000), ratelimit.WithRetries(0)))
}

func TestInterval(t *testing.T) {
	assert.Equal(t, "m1", Interval(domrepo.TF1))
	assert.Equal(t, "h4", Interval(domrepo.TF240))
	assert.Equal(t, "d1", Interval(domrepo.TFDay))
	assert.Equal(t, "h1", Interval(domrepo.Timeframe("7")))
}

func TestGetCandlesFlatBars(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/bitcoin/history", r.URL.Path)
		assert.Equal(t, "h1", r.URL.Query().Get("interval"))
		_, _ = io.WriteString(w, `{"data":[
			{"priceUsd":"100.5","time":1700000000000},
			{"priceUsd":"101","volumeUsd":"2500","time":1700003600000},
			{"priceUsd":"102","time":1700007200000}]}`)
	})

	got, err := p.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Candle{Time: 1700003600, Open: 101, High: 101, Low: 101, Close: 101, Volume: 2500}, got[0])
	assert.Equal(t, 0.0, got[1].Volume)
}

func TestGetTicker(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/bitcoin", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"id":"bitcoin","priceUsd":"67000.25"}}`)
	})
	tk, err := p.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 67000.25, tk.Last)
}

func TestGetCandlesMissingData(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"not found"}`)
	})
	_, err := p.GetCandles(context.Background(), "BTCTMN", domrepo.TF60, 10)
	assert.ErrorIs(t, err, domrepo.ErrNoData)
}

func TestParseTick(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	tick, ok := ParseTick([]byte(`{"bitcoin":"67012.34"}`), "bitcoin", "BTCTMN", at)
	require.True(t, ok)
	assert.Equal(t, &models.PriceTick{Symbol: "BTCTMN", Price: 67012.34, Timestamp: 1_700_000_000_123, Provider: Name}, tick)

	_, ok = ParseTick([]byte(`{"ethereum":"1"}`), "bitcoin", "BTCTMN", at)
	assert.False(t, ok)
}

func TestStreamReadsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("assets"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"bitcoin":"50000"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), "BTCTMN", time.Second, logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())

	ticks, _ := s.Read(ctx)
	select {
	case tick := <-ticks:
		require.NotNil(t, tick)
		assert.Equal(t, 50000.0, tick.Price)
	case <-ctx.Done():
		t.Fatal("no tick received")
	}
	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}
