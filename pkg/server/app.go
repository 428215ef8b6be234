package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/internal/middleware"
	"SmartTrader/internal/service/telegram"
	"SmartTrader/internal/usecase"
	"SmartTrader/pkg/config"
	xhttp "SmartTrader/pkg/http"
	applogger "SmartTrader/pkg/logger"
)

// Closer releases one infrastructure resource on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	trader     *usecase.Trader
	journal    domrepo.Journal
	pipeline   *middleware.PricePipeline
	notifier   *telegram.Notifier
	httpServer *xhttp.Server
	closers    []Closer
}

// New creates the App. pipeline and httpServer are nil when disabled.
// closers run in order on Close.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	trader *usecase.Trader,
	journal domrepo.Journal,
	pipeline *middleware.PricePipeline,
	notifier *telegram.Notifier,
	httpServer *xhttp.Server,
	closers []Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		trader:     trader,
		journal:    journal,
		pipeline:   pipeline,
		notifier:   notifier,
		httpServer: httpServer,
		closers:    closers,
	}
}

// Run starts the live price pipeline, the status server and the trader loop,
// then blocks until a signal arrives, ctx ends or the trader fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.Close()

	if err := a.journal.Init(ctx); err != nil {
		return fmt.Errorf("journal init: %w", err)
	}

	if a.pipeline != nil {
		if err := a.pipeline.Start(ctx); err != nil {
			// candles still come from REST; the override is simply skipped
			a.log.Warn("live price stream unavailable", applogger.Error(err))
		} else {
			defer a.pipeline.Stop()
		}
	}

	var httpErr <-chan error
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		httpErr = a.httpServer.Err()
		defer func() {
			if err := a.httpServer.Stop(context.Background()); err != nil {
				a.log.Error("http shutdown error", applogger.Error(err))
			}
		}()
	}

	if a.notifier != nil && a.notifier.Enabled() {
		if err := a.notifier.Ping(ctx); err != nil {
			a.log.Warn("telegram startup message failed", applogger.Error(err))
		}
	}

	traderCtx, cancelTrader := context.WithCancel(ctx)
	defer cancelTrader()
	traderErr := make(chan error, 1)
	go func() { traderErr <- a.trader.Run(traderCtx) }()

	a.log.Info("smart trader running",
		applogger.String("env", a.cfg.Environment),
		applogger.String("symbol", a.cfg.Trader.Symbol),
		applogger.String("journal", a.cfg.Journal.Backend),
		applogger.String("cache", a.cfg.Cache.Backend))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-traderErr:
		runErr = err
		traderErr = nil
	}

	cancelTrader()
	if traderErr != nil {
		select {
		case err := <-traderErr:
			if err != nil && runErr == nil {
				runErr = err
			}
		case <-time.After(a.cfg.Server.ShutdownTimeout):
			a.log.Warn("trader did not stop in time")
		}
	}
	return runErr
}

// RunOnce runs a single cycle against the restored account and returns it.
func (a *App) RunOnce(ctx context.Context) (*usecase.CycleResult, error) {
	defer a.Close()
	if err := a.journal.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal init: %w", err)
	}
	if err := a.trader.Restore(ctx); err != nil {
		a.log.Warn("account restore failed, starting fresh", applogger.Error(err))
	}
	return a.trader.RunOnce(ctx)
}

// Migrate creates or upgrades the journal schema and exits.
func (a *App) Migrate(ctx context.Context) error {
	defer a.Close()
	if err := a.journal.Init(ctx); err != nil {
		return fmt.Errorf("journal init: %w", err)
	}
	a.log.Info("journal schema ready", applogger.String("backend", a.cfg.Journal.Backend))
	return nil
}

// Close releases every resource once. Errors are logged and joined.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
