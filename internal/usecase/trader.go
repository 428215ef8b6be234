package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/services/account"
	"SmartTrader/internal/services/behavior"
	"SmartTrader/internal/services/signal"
	"SmartTrader/pkg/logger"
)

var ErrLocked = errors.New("trader already running for symbol")

// Market is the part of the market-data gateway the trader uses.
type Market interface {
	GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int, required string) models.MarketDataResponse
	GetTicker(ctx context.Context, symbol string, required string) models.MarketDataResponse
}

// LivePrices is satisfied by middleware.PricePipeline.
type LivePrices interface {
	LivePrice(symbol string, maxAge time.Duration) (float64, error)
}

type Settings struct {
	Symbol            string
	PrimaryTF         domrepo.Timeframe
	ConfirmTF         domrepo.Timeframe
	MaxCandlesPrimary int
	MaxCandlesConfirm int
	PollInterval      time.Duration
	MinTradeValue     float64
	RequiredProvider  string
	LockTTL           time.Duration
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Iteration int
	Primary   *models.DecisionContext
	Confirm   *models.DecisionContext
	Decision  models.Decision
	Record    *models.DecisionRecord
	Events    []models.TradeEvent
	Report    string
	Journaled bool
	Deferred  bool
}

// Trader runs the decision loop for one symbol. It owns the account; other
// goroutines only see the snapshots it publishes to the state store.
type Trader struct {
	set      Settings
	market   Market
	engine   *signal.Engine
	account  *account.Account
	journal  domrepo.Journal
	pub      domrepo.EventPublisher
	state    domrepo.StateStore
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	log      *logger.Logger

	live         LivePrices
	liveProvider string
	liveMaxAge   time.Duration
	now          func() time.Time

	iteration      int
	lastFP         string
	lastReportFP   string
	lastCandleTime int64
	deferred       models.Action
}

type TraderOption func(*Trader)

// WithLivePrices overrides the last primary close from a price stream, but
// only on cycles whose candles came from provider.
func WithLivePrices(src LivePrices, provider string, maxAge time.Duration) TraderOption {
	return func(t *Trader) {
		t.live, t.liveProvider, t.liveMaxAge = src, provider, maxAge
	}
}

func WithTraderClock(now func() time.Time) TraderOption {
	return func(t *Trader) { t.now = now }
}

func NewTrader(
	set Settings,
	market Market,
	engine *signal.Engine,
	acct *account.Account,
	journal domrepo.Journal,
	pub domrepo.EventPublisher,
	state domrepo.StateStore,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...TraderOption,
) *Trader {
	t := &Trader{
		set:      set,
		market:   market,
		engine:   engine,
		account:  acct,
		journal:  journal,
		pub:      pub,
		state:    state,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With(logger.String("symbol", set.Symbol)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.set.PollInterval <= 0 {
		t.set.PollInterval = 12 * time.Second
	}
	if t.set.LockTTL < 2*t.set.PollInterval {
		t.set.LockTTL = 2 * t.set.PollInterval
	}
	return t
}

// Account exposes the simulated account. Not safe while Run is active.
func (t *Trader) Account() *account.Account { return t.account }

// Restore replaces the account with the last snapshot in the state store, if any.
func (t *Trader) Restore(ctx context.Context) error {
	snap, err := t.state.LoadAccount(ctx, t.set.Symbol)
	if err != nil {
		return fmt.Errorf("restore account: %w", err)
	}
	if snap == nil {
		return nil
	}
	t.account = account.Restore(snap)
	t.log.Info("account restored",
		logger.Float64("equity", snap.Equity),
		logger.Float64("balance", snap.Balance),
		logger.Bool("position_open", snap.Position != nil))
	return nil
}

// Run takes the per-symbol lock and runs cycles every poll interval until
// ctx ends. Cycle failures are logged and never stop the loop.
func (t *Trader) Run(ctx context.Context) error {
	ok, err := t.state.AcquireLock(ctx, t.set.Symbol, t.set.LockTTL)
	if err != nil {
		return fmt.Errorf("trader lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, t.set.Symbol)
	}
	defer func() {
		if err := t.state.ReleaseLock(context.Background(), t.set.Symbol); err != nil {
			t.log.Warn("release trader lock failed", logger.Error(err))
		}
	}()

	if err := t.Restore(ctx); err != nil {
		t.log.Warn("account restore failed, starting fresh", logger.Error(err))
	}

	t.log.Info("trader started",
		logger.String("primary_tf", string(t.set.PrimaryTF)),
		logger.String("confirm_tf", string(t.set.ConfirmTF)),
		logger.Duration("poll_interval", t.set.PollInterval))

	ticker := time.NewTicker(t.set.PollInterval)
	defer ticker.Stop()
	for {
		t.safeCycle(ctx)
		select {
		case <-ctx.Done():
			t.log.Info("trader stopped")
			return nil
		case <-ticker.C:
			if err := t.state.RefreshLock(ctx, t.set.Symbol, t.set.LockTTL); err != nil {
				t.log.Warn("refresh trader lock failed", logger.Error(err))
			}
		}
	}
}

func (t *Trader) safeCycle(ctx context.Context) {
	start := t.now()
	defer func() {
		if r := recover(); r != nil {
			t.metrics.RecordError("cycle_panic")
			t.metrics.RecordCycle(t.set.Symbol, "panic", t.now().Sub(start).Seconds())
			t.log.Error("cycle panic recovered", logger.String("panic", fmt.Sprint(r)))
		}
	}()
	if _, err := t.RunOnce(ctx); err != nil {
		t.log.Error("cycle failed", logger.Int("iteration", t.iteration), logger.Error(err))
	}
}

type marketData struct {
	primary models.MarketDataResponse
	confirm models.MarketDataResponse
	ticker  models.MarketDataResponse
}

// fetch loads primary and confirm candles and the ticker concurrently.
// Only a primary failure is fatal for the cycle.
func (t *Trader) fetch(ctx context.Context) (marketData, error) {
	var md marketData
	g, gctx := errgroup.WithContext(ctx)
	safeGo(g, func() error {
		md.primary = t.market.GetCandles(gctx, t.set.Symbol, t.set.PrimaryTF, t.set.MaxCandlesPrimary, t.set.RequiredProvider)
		if md.primary.Err != nil {
			return fmt.Errorf("primary candles: %w", md.primary.Err)
		}
		return nil
	})
	if t.set.ConfirmTF != "" {
		safeGo(g, func() error {
			md.confirm = t.market.GetCandles(gctx, t.set.Symbol, t.set.ConfirmTF, t.set.MaxCandlesConfirm, t.set.RequiredProvider)
			return nil
		})
	}
	safeGo(g, func() error {
		md.ticker = t.market.GetTicker(gctx, t.set.Symbol, t.set.RequiredProvider)
		return nil
	})
	if err := g.Wait(); err != nil {
		return md, err
	}
	if len(md.primary.Candles) == 0 {
		return md, fmt.Errorf("primary candles: %w", domrepo.ErrNoData)
	}
	return md, nil
}

// safeGo runs f on g and reports a panic in f as the goroutine's error.
func safeGo(g *errgroup.Group, f func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fetch panic: %v", r)
			}
		}()
		return f()
	})
}

// livePrice prefers a fresh stream price, then the gateway ticker.
func (t *Trader) livePrice(md marketData) (float64, string) {
	if t.live != nil && md.primary.Provider == t.liveProvider {
		p, err := t.live.LivePrice(t.set.Symbol, t.liveMaxAge)
		if err == nil {
			return p, t.liveProvider + "_stream"
		}
		t.log.Debug("stream price unavailable", logger.Error(err))
	}
	if md.ticker.OK() {
		return md.ticker.Ticker.Price(), md.ticker.Provider
	}
	return 0, ""
}

// RunOnce executes a single cycle.
func (t *Trader) RunOnce(ctx context.Context) (*CycleResult, error) {
	start := t.now()
	t.iteration++
	res := &CycleResult{Iteration: t.iteration}
	outcome := "error"
	defer func() {
		t.metrics.RecordCycle(t.set.Symbol, outcome, t.now().Sub(start).Seconds())
	}()

	md, err := t.fetch(ctx)
	if err != nil {
		t.metrics.RecordError("fetch")
		return nil, err
	}

	candles := md.primary.Candles
	livePrice, liveSource := t.livePrice(md)
	if livePrice > 0 {
		candles = signal.OverrideLastPrice(candles, livePrice)
	}
	last := candles[len(candles)-1]
	t.metrics.RecordLastPrice(t.set.Symbol, last.Close)

	params := t.engine.Params()
	beh := behavior.Score(candles)
	primary, err := signal.DeriveContext(candles, string(t.set.PrimaryTF), params, &beh)
	if err != nil {
		return nil, fmt.Errorf("primary context: %w", err)
	}
	primary.Reasons = append(primary.Reasons, primary.RegimeReasons...)
	if liveSource != "" {
		primary.AddReasonf("Live price %s from %s", num(livePrice, 2), liveSource)
	}
	t.engine.GateAndWeight(primary)

	var confirm *models.DecisionContext
	if md.confirm.OK() {
		if confirm, err = signal.DeriveContext(md.confirm.Candles, string(t.set.ConfirmTF), params, nil); err == nil {
			t.engine.GateAndWeight(confirm)
		} else {
			confirm = nil
		}
	} else if t.set.ConfirmTF != "" {
		t.log.Warn("confirm candles unavailable", logger.Error(md.confirm.Err))
	}

	d := t.engine.Decide(primary, confirm)
	t.metrics.RecordDecision(t.set.Symbol, d.Action)
	res.Primary, res.Confirm, res.Decision = primary, confirm, d

	newCandle := t.lastCandleTime != 0 && last.Time != t.lastCandleTime
	t.lastCandleTime = last.Time

	fp := signal.Fingerprint(primary, confirm)
	rec := t.buildRecord(primary, confirm, d, last, &beh, md, fp)
	res.Record = rec

	// exits first, then entries
	if ev, armed := t.account.ManageOpen(primary.Price, d.Action); ev != nil {
		res.Events = append(res.Events, *ev)
		t.onClose(ctx, *ev)
	} else if armed {
		entry := t.account.Position.EntryPrice
		primary.AddReasonf("Breakeven armed: stop moved to %s", num(entry, 2))
		t.log.Info("breakeven armed", logger.Float64("stop", entry))
	}
	if t.account.Position == nil && d.Action != models.ActionHold {
		if ev, deferred := t.enter(ctx, d, primary, newCandle); ev != nil {
			res.Events = append(res.Events, *ev)
		} else {
			res.Deferred = deferred
		}
	} else if newCandle && t.deferred != "" {
		t.log.Info("deferred entry dropped", logger.String("deferred", string(t.deferred)), logger.String("action", string(d.Action)))
		t.deferred = ""
	}

	// exit and entry handling may append reasons
	rec.Reasons = slices.Clone(primary.Reasons)
	res.Journaled = t.journalDecision(ctx, rec)

	t.persistAccount(ctx, primary.Price, len(res.Events) > 0)

	if err := t.state.SaveLastDecision(ctx, rec); err != nil {
		t.log.Warn("state save decision failed", logger.Error(err))
	}

	res.Report = FormatAnalysis(Analysis{
		Iteration: t.iteration, Time: t.now(), Primary: primary, Confirm: confirm,
		Decision: d, Position: t.account.Position,
	})
	if fp != t.lastReportFP || newCandle || len(res.Events) > 0 {
		t.lastReportFP = fp
		t.log.Info(res.Report)
		if err := t.notifier.SendAnalysis(ctx, res.Report); err != nil {
			t.log.Warn("SMART ANALYSIS telegram send failed", logger.Error(err))
		}
	}

	outcome = "ok"
	return res, nil
}

func (t *Trader) buildRecord(
	primary, confirm *models.DecisionContext,
	d models.Decision,
	last models.Candle,
	beh *models.BehaviorResult,
	md marketData,
	fp string,
) *models.DecisionRecord {
	rec := &models.DecisionRecord{
		Timestamp:     t.now().UTC(),
		Symbol:        t.set.Symbol,
		Open:          last.Open,
		High:          last.High,
		Low:           last.Low,
		Price:         primary.Price,
		Volume:        last.Volume,
		TF:            string(t.set.PrimaryTF),
		ConfirmTF:     string(t.set.ConfirmTF),
		TrendRaw:      primary.TrendRaw,
		MomentumRaw:   primary.MomentumRaw,
		MeanRevRaw:    primary.MeanRevRaw,
		BreakoutRaw:   primary.BreakoutRaw,
		ADX:           primary.ADX,
		ATR:           primary.ATR,
		Trend:         primary.Trend,
		Momentum:      primary.Momentum,
		MeanRev:       primary.MeanRev,
		Breakout:      primary.Breakout,
		AggregateS:    primary.Aggregate,
		Decision:      d.Action,
		Regime:        primary.Regime,
		Reasons:       slices.Clone(primary.Reasons),
		RegimeReasons: slices.Clone(primary.RegimeReasons),
		TrendGated:    primary.TrendGated,
		MomentumGated: primary.MomentumGated,
		MeanRevGated:  primary.MeanRevGated,
		BreakoutGated: primary.BreakoutGated,
		BehaviorScore: beh.Score,
		BehaviorBias:  primary.BehaviorBias,
		Provider:      providers(md),
		Confidence:    md.primary.Confidence,
		Fingerprint:   fp,
	}
	if confirm != nil {
		s, adx, rsi := confirm.Aggregate, confirm.ADX, confirm.RSI
		rec.ConfirmS, rec.ConfirmADX, rec.ConfirmRSI = &s, &adx, &rsi
	}
	if pr := d.Proposed; pr != nil && pr.StopPrice != nil {
		stop := *pr.StopPrice
		dist := pr.EntryPrice - stop
		tp := pr.EntryPrice + account.TakeProfitR*dist
		qty := account.PositionSizeByRisk(t.account.Equity, t.engine.Params().MaxRiskPerTrade, pr.EntryPrice, &stop)
		risk := qty * absf(dist)
		rec.StopPrice, rec.TPPrice, rec.PosSize, rec.RiskAmount = &stop, &tp, &qty, &risk
	}
	return rec
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// providers lists the distinct providers that served this cycle, primary first.
func providers(md marketData) string {
	var out []string
	for _, r := range []models.MarketDataResponse{md.primary, md.confirm, md.ticker} {
		if r.Provider != "" && !slices.Contains(out, r.Provider) {
			out = append(out, r.Provider)
		}
	}
	return strings.Join(out, ",")
}

// journalDecision writes the record unless it matches the previous one.
func (t *Trader) journalDecision(ctx context.Context, rec *models.DecisionRecord) bool {
	if rec.Fingerprint == t.lastFP {
		return false
	}
	if err := t.journal.SaveDecision(ctx, rec); err != nil {
		t.metrics.RecordError("journal_decision")
		t.log.Error("journal decision failed", logger.Error(err))
		return false
	}
	t.lastFP = rec.Fingerprint
	if err := t.pub.PublishDecision(ctx, rec); err != nil {
		t.metrics.RecordError("publish_decision")
		t.log.Warn("publish decision failed", logger.Error(err))
	}
	return true
}

// enter opens a position now or defers it to the next primary candle.
func (t *Trader) enter(ctx context.Context, d models.Decision, primary *models.DecisionContext, newCandle bool) (*models.TradeEvent, bool) {
	p := t.engine.Params()
	vr := primary.VolRatio
	if !newCandle && !(p.AllowIntracandle && vr >= p.MinVRIntracandle) {
		primary.AddReasonf("Intracandle deferred: allow=%t vr=%.2f (min %.2f), %s waits for next candle",
			p.AllowIntracandle, vr, p.MinVRIntracandle, d.Action)
		t.deferred = d.Action
		return nil, true
	}
	t.deferred = ""

	ev, err := t.account.Open(d, primary.Price, p.MaxRiskPerTrade, t.set.MinTradeValue)
	if err != nil {
		primary.AddReasonf("Entry skipped: %v", err)
		if errors.Is(err, account.ErrTradeDeclined) {
			t.log.Info("skipping trade", logger.Error(err))
		} else {
			t.log.Error("open position failed", logger.Error(err))
		}
		return nil, false
	}

	t.recordTrade(ctx, ev)
	t.log.Info("position opened",
		logger.String("side", string(ev.Side)),
		logger.Float64("qty", ev.Qty),
		logger.Float64("entry", ev.EntryPrice),
		logger.Float64("notional", ev.Qty*ev.EntryPrice))
	if err := t.notifier.Send(ctx, openMessage(t.set.Symbol, ev)); err != nil {
		t.log.Warn("telegram trade message failed", logger.Error(err))
	}
	return &ev, false
}

func (t *Trader) onClose(ctx context.Context, ev models.TradeEvent) {
	t.recordTrade(ctx, ev)
	pnl := 0.0
	if ev.PnL != nil {
		pnl = *ev.PnL
	}
	t.log.Info("position closed",
		logger.String("side", string(ev.Side)),
		logger.String("reason", ev.Reason),
		logger.Float64("pnl", pnl))
	if err := t.notifier.Send(ctx, closeMessage(t.set.Symbol, ev)); err != nil {
		t.log.Warn("telegram close message failed", logger.Error(err))
	}
}

func (t *Trader) recordTrade(ctx context.Context, ev models.TradeEvent) {
	t.metrics.RecordTradeEvent(t.set.Symbol, ev.EventType, ev.Reason)
	if err := t.journal.SaveTradeEvent(ctx, &ev); err != nil {
		t.metrics.RecordError("journal_trade")
		t.log.Error("journal trade event failed", logger.Error(err))
	}
	if err := t.pub.PublishTradeEvent(ctx, &ev); err != nil {
		t.metrics.RecordError("publish_trade")
		t.log.Warn("publish trade event failed", logger.Error(err))
	}
}

// persistAccount publishes the snapshot every cycle and journals it when
// the account changed through a trade.
func (t *Trader) persistAccount(ctx context.Context, price float64, traded bool) {
	t.account.UpdateEquity(price)
	snap := t.account.Snapshot()
	t.metrics.RecordEquity(t.set.Symbol, snap.Equity, snap.Balance)
	if traded {
		if err := t.journal.SaveAccountSnapshot(ctx, &snap); err != nil {
			t.metrics.RecordError("journal_account")
			t.log.Error("journal account snapshot failed", logger.Error(err))
		}
	}
	if err := t.state.SaveAccount(ctx, &snap); err != nil {
		t.log.Warn("state save account failed", logger.Error(err))
	}
}
