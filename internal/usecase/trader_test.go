package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/repository"
	"SmartTrader/internal/services/account"
	"SmartTrader/internal/services/signal"
	"SmartTrader/pkg/cache"
	"SmartTrader/pkg/logger"
	"SmartTrader/pkg/metrics"
)

func uptrend(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Candle{Time: int64(i) * 14400, Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

type fakeMarket struct {
	candles  []models.Candle
	provider string
	ticker   float64
	err      error
	panics   bool
}

func (m *fakeMarket) GetCandles(_ context.Context, _ string, _ domrepo.Timeframe, _ int, _ string) models.MarketDataResponse {
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return models.MarketDataResponse{Err: m.err}
	}
	return models.MarketDataResponse{Candles: append([]models.Candle(nil), m.candles...), Provider: m.provider, Confidence: 1}
}

func (m *fakeMarket) GetTicker(_ context.Context, _ string, _ string) models.MarketDataResponse {
	if m.ticker <= 0 {
		return models.MarketDataResponse{Err: domrepo.ErrNoData}
	}
	return models.MarketDataResponse{Ticker: &models.Ticker{Last: m.ticker}, Provider: m.provider, Confidence: 1}
}

type memJournal struct {
	decisions []models.DecisionRecord
	trades    []models.TradeEvent
	snapshots []models.AccountSnapshot
}

func (j *memJournal) Init(context.Context) error { return nil }
func (j *memJournal) SaveDecision(_ context.Context, r *models.DecisionRecord) error {
	j.decisions = append(j.decisions, *r)
	return nil
}
func (j *memJournal) SaveTradeEvent(_ context.Context, e *models.TradeEvent) error {
	j.trades = append(j.trades, *e)
	return nil
}
func (j *memJournal) SaveAccountSnapshot(_ context.Context, s *models.AccountSnapshot) error {
	j.snapshots = append(j.snapshots, *s)
	return nil
}
func (j *memJournal) Health(context.Context) error { return nil }
func (j *memJournal) Close() error                 { return nil }

type fakeNotifier struct {
	messages []string
	analyses []string
}

func (n *fakeNotifier) Enabled() bool { return true }
func (n *fakeNotifier) Send(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}
func (n *fakeNotifier) SendAnalysis(_ context.Context, report string) error {
	n.analyses = append(n.analyses, report)
	return nil
}

type fixedLive struct{ price float64 }

func (f fixedLive) LivePrice(string, time.Duration) (float64, error) { return f.price, nil }

type harness struct {
	trader   *Trader
	market   *fakeMarket
	journal  *memJournal
	notifier *fakeNotifier
	state    *repository.CacheStateStore
}

func trendOnlyParams() models.StrategyParams {
	p := models.DefaultStrategyParams()
	p.Weights = models.Weights{Trend: 1}
	p.RequireMTFAgreement = false
	return p
}

func newHarness(t *testing.T, params models.StrategyParams, opts ...TraderOption) *harness {
	t.Helper()
	engine, err := signal.NewEngine(params)
	require.NoError(t, err)

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	h := &harness{
		market:   &fakeMarket{candles: uptrend(120), provider: "wallex", ticker: 219},
		journal:  &memJournal{},
		notifier: &fakeNotifier{},
		state:    repository.NewCacheStateStore(mc, time.Hour),
	}
	ids := 0
	acct := account.New("BTCTMN", 1_000_000, account.WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("t%d", ids)
	}))
	set := Settings{
		Symbol:            "BTCTMN",
		PrimaryTF:         domrepo.TF240,
		MaxCandlesPrimary: 200,
		PollInterval:      time.Hour,
		MinTradeValue:     1000,
	}
	h.trader = NewTrader(set, h.market, engine, acct, h.journal, repository.NopPublisher{}, h.state,
		h.notifier, metrics.Nop{}, logger.Nop(), opts...)
	return h
}

func TestRunOnceOpensLongOnUptrend(t *testing.T) {
	h := newHarness(t, trendOnlyParams())

	res, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, res.Decision.Action)
	assert.True(t, res.Journaled)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, models.EventOpen, ev.EventType)
	assert.Equal(t, models.SideLong, ev.Side)
	assert.Equal(t, "t1", ev.TradeID)
	assert.InDelta(t, 2500, ev.Qty, 1e-3, "1% of 1M equity over a 4.0 stop distance")

	rec := res.Record
	assert.Equal(t, "wallex", rec.Provider)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Nil(t, rec.ConfirmS)
	require.NotNil(t, rec.StopPrice)
	assert.InDelta(t, 215, *rec.StopPrice, 1e-6)
	assert.InDelta(t, 219+0.7*4, *rec.TPPrice, 1e-6)
	assert.InDelta(t, 2500, *rec.PosSize, 1e-3)
	assert.Equal(t, signal.Fingerprint(res.Primary, nil), rec.Fingerprint)

	acct := h.trader.Account()
	require.NotNil(t, acct.Position)
	assert.InDelta(t, 1_000_000-2500*219, acct.Balance, 1e-3)

	assert.Len(t, h.journal.decisions, 1)
	assert.Len(t, h.journal.trades, 1)
	assert.Len(t, h.journal.snapshots, 1)
	assert.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "<b>Trade</b> BUY BTCTMN")
	require.Len(t, h.notifier.analyses, 1)
	assert.Contains(t, h.notifier.analyses[0], "Decision: BUY")

	snap, err := h.state.LoadAccount(context.Background(), "BTCTMN")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotNil(t, snap.Position)
	last, err := h.state.LoadLastDecision(context.Background(), "BTCTMN")
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, last.Decision)
}

func TestRunOnceDedupesUnchangedCycles(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	ctx := context.Background()

	_, err := h.trader.RunOnce(ctx)
	require.NoError(t, err)
	res, err := h.trader.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iteration)
	assert.False(t, res.Journaled)
	assert.Empty(t, res.Events, "position already open and no exit triggered")
	assert.Len(t, h.journal.decisions, 1)
	assert.Len(t, h.notifier.analyses, 1, "unchanged analysis is not resent")
}

func TestRunOnceTakesProfit(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	ctx := context.Background()

	_, err := h.trader.RunOnce(ctx)
	require.NoError(t, err)

	h.market.ticker = 222
	res, err := h.trader.RunOnce(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, res.Events)
	closed := res.Events[0]
	assert.Equal(t, models.EventClose, closed.EventType)
	assert.Equal(t, models.ReasonTPHit, closed.Reason)
	require.NotNil(t, closed.PnL)
	assert.InDelta(t, 2500*3, *closed.PnL, 1e-3)
	assert.True(t, strings.HasPrefix(h.notifier.messages[1], "🎯 <b>Closed</b> BTCTMN LONG"))
}

func TestRunOnceDefersIntracandleEntry(t *testing.T) {
	params := trendOnlyParams()
	params.AllowIntracandle = false
	h := newHarness(t, params)
	ctx := context.Background()

	res, err := h.trader.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Decision.Action)
	assert.True(t, res.Deferred)
	assert.Empty(t, res.Events)
	assert.Nil(t, h.trader.Account().Position)
	assert.True(t, hasReasonPrefix(res.Primary.Reasons, "Intracandle deferred"))
	require.Len(t, h.journal.decisions, 1)
	assert.True(t, hasReasonPrefix(h.journal.decisions[0].Reasons, "Intracandle deferred"),
		"journaled record carries reasons added while handling the entry")

	h.market.candles = uptrend(121)
	h.market.ticker = 220
	res, err = h.trader.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Events, 1, "new primary candle releases the entry")
	assert.Equal(t, models.EventOpen, res.Events[0].EventType)
}

func TestRunOncePrimaryFailure(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	h.market.err = fmt.Errorf("candles: %w", domrepo.ErrAllProvidersFailed)

	res, err := h.trader.RunOnce(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domrepo.ErrAllProvidersFailed)
	assert.Empty(t, h.journal.decisions)
}

func TestRunOnceLivePriceSource(t *testing.T) {
	h := newHarness(t, trendOnlyParams(), WithLivePrices(fixedLive{price: 230}, "coincap", time.Minute))

	res, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 219.0, res.Primary.Price, "stream ignored when candles came from another provider")

	h2 := newHarness(t, trendOnlyParams(), WithLivePrices(fixedLive{price: 230}, "coincap", time.Minute))
	h2.market.provider = "coincap"
	res, err = h2.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 230.0, res.Primary.Price)
	assert.Equal(t, 230.0, res.Record.High)
	assert.True(t, hasReasonPrefix(res.Primary.Reasons, "Live price 230.00 from coincap_stream"))
}

func TestRunRespectsLock(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	ctx := context.Background()

	ok, err := h.state.AcquireLock(ctx, "BTCTMN", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, h.trader.Run(ctx), ErrLocked)
	require.NoError(t, h.state.ReleaseLock(ctx, "BTCTMN"))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, h.trader.Run(cctx))
	assert.Len(t, h.journal.decisions, 1, "one cycle before noticing cancellation")

	ok, err = h.state.AcquireLock(ctx, "BTCTMN", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released on exit")
}

func TestSafeCycleRecoversPanics(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	h.market.panics = true
	assert.NotPanics(t, func() { h.trader.safeCycle(context.Background()) })
}

func TestRunOnceReportsFetchPanicAsError(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	h.market.panics = true

	var err error
	require.NotPanics(t, func() { _, err = h.trader.RunOnce(context.Background()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch panic: boom")
}

func TestRestoreFromState(t *testing.T) {
	h := newHarness(t, trendOnlyParams())
	ctx := context.Background()
	stop := 95.0
	side := models.SideShort
	require.NoError(t, h.state.SaveAccount(ctx, &models.AccountSnapshot{
		Symbol: "BTCTMN", Equity: 500, Balance: 480, PositionSide: &side,
		Position: &models.Position{TradeID: "x", Side: models.SideShort, Qty: 1, EntryPrice: 90, StopPrice: &stop},
	}))

	require.NoError(t, h.trader.Restore(ctx))
	acct := h.trader.Account()
	assert.Equal(t, 480.0, acct.Balance)
	require.NotNil(t, acct.Position)
	assert.Equal(t, "x", acct.Position.TradeID)
}

func hasReasonPrefix(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
