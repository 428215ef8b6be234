package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/service/ratelimit"
	"SmartTrader/pkg/logger"
)

var ErrNoLivePrice = errors.New("no live price")

// PricePipeline sits between a websocket price stream and the trader.
// It validates and throttles ticks and keeps the latest accepted price per symbol.
type PricePipeline struct {
	stream  domrepo.PriceStream
	metrics domrepo.Metrics
	log     *logger.Logger
	limiter *ratelimit.Limiter
	maxRPS  float64
	now     func() time.Time

	mu     sync.RWMutex
	latest map[string]models.PriceTick

	cancel context.CancelFunc
	done   chan struct{}
}

type PipelineOption func(*PricePipeline)

// WithMaxRPS caps accepted ticks per second per symbol.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *PricePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *PricePipeline) { p.now = now }
}

func NewPricePipeline(stream domrepo.PriceStream, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *PricePipeline {
	p := &PricePipeline{
		stream:  stream,
		metrics: metrics,
		log:     log,
		maxRPS:  2,
		now:     time.Now,
		latest:  make(map[string]models.PriceTick),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = ratelimit.New(p.maxRPS, 1)
	return p
}

// Start connects the stream and pumps ticks in the background until Stop
// or ctx ends. Read errors trigger a reconnect after the stream's delay.
func (p *PricePipeline) Start(ctx context.Context) error {
	if p.cancel != nil {
		return nil
	}
	if err := p.stream.Connect(ctx); err != nil {
		return fmt.Errorf("price pipeline connect: %w", err)
	}
	if err := p.stream.Subscribe(ctx); err != nil {
		_ = p.stream.Close()
		return fmt.Errorf("price pipeline subscribe: %w", err)
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *PricePipeline) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	_ = p.stream.Close()
	p.cancel = nil
}

func (p *PricePipeline) run(ctx context.Context) {
	defer close(p.done)
	for {
		ticks, errs := p.stream.Read(ctx)
		err := p.drain(ctx, ticks, errs)
		if ctx.Err() != nil {
			return
		}
		p.metrics.RecordError("stream_read")
		p.log.Warn("price stream dropped, reconnecting",
			logger.String("provider", p.stream.Provider()),
			logger.Error(err))
		for {
			if err := p.stream.Reconnect(ctx); err == nil {
				break
			} else if ctx.Err() != nil {
				return
			} else {
				p.log.Warn("price stream reconnect failed", logger.Error(err))
			}
		}
	}
}

func (p *PricePipeline) drain(ctx context.Context, ticks <-chan *models.PriceTick, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				// errs is buffered and holds the read error, if any
				if err, ok := <-errs; ok && err != nil {
					return err
				}
				return errors.New("stream closed")
			}
			_ = p.Process(t)
		}
	}
}

// Process validates and throttles one tick and records it as the latest price.
// Throttled ticks are dropped silently.
func (p *PricePipeline) Process(t *models.PriceTick) error {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	at := time.UnixMilli(t.Timestamp)
	if !p.limiter.AllowAt(t.Symbol, at) {
		return nil
	}
	p.mu.Lock()
	if prev, ok := p.latest[t.Symbol]; ok && prev.Timestamp > t.Timestamp {
		p.mu.Unlock()
		return nil
	}
	p.latest[t.Symbol] = *t
	p.mu.Unlock()
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	return nil
}

// LivePrice returns the latest accepted price for symbol if it is younger than maxAge.
func (p *PricePipeline) LivePrice(symbol string, maxAge time.Duration) (float64, error) {
	p.mu.RLock()
	t, ok := p.latest[symbol]
	p.mu.RUnlock()
	if !ok {
		return 0, ErrNoLivePrice
	}
	if age := p.now().Sub(time.UnixMilli(t.Timestamp)); maxAge > 0 && age > maxAge {
		return 0, fmt.Errorf("%w: last tick %s old", ErrNoLivePrice, age.Truncate(time.Second))
	}
	return t.Price, nil
}

func validateTick(t *models.PriceTick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("price invalid: %v", t.Price)
	}
	return nil
}
