package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	xhttp "SmartTrader/pkg/http"
	xlogger "SmartTrader/pkg/logger"
)

const healthTimeout = 3 * time.Second

// StatusHandler exposes the trader's live state and journal history.
type StatusHandler struct {
	logger  *xlogger.Logger
	symbol  string
	journal domrepo.Journal
	history domrepo.DecisionHistory
	state   domrepo.StateStore
}

// NewStatusHandler serves the default symbol when a request names none.
// history may be nil when the journal backend cannot be queried.
func NewStatusHandler(logger *xlogger.Logger, symbol string, journal domrepo.Journal, history domrepo.DecisionHistory, state domrepo.StateStore) *StatusHandler {
	return &StatusHandler{logger: logger, symbol: symbol, journal: journal, history: history, state: state}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/decisions", h.Decisions)
	g.GET("/trades", h.Trades)
}

func (h *StatusHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := h.journal.Health(ctx); err != nil {
		h.logger.Warn("journal health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("journal unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"journal": "ok"})
}

func (h *StatusHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := h.symbolOr(req.Symbol)
	ctx := c.Request().Context()

	acct, err := h.state.LoadAccount(ctx, symbol)
	if err != nil {
		h.logger.Error("load account state", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	last, err := h.state.LoadLastDecision(ctx, symbol)
	if err != nil {
		h.logger.Error("load last decision", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if acct == nil && last == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no state for "+symbol))
	}
	return xhttp.SuccessResponse(c, &models.StatusResponse{Symbol: symbol, Account: acct, LastDecision: last})
}

func (h *StatusHandler) Decisions(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("journal history unavailable"))
	}
	rows, err := h.history.RecentDecisions(c.Request().Context(), h.symbolOr(req.Symbol), req.Limit)
	if err != nil {
		h.logger.Error("recent decisions", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusHandler) Trades(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("journal history unavailable"))
	}
	rows, err := h.history.RecentTradeEvents(c.Request().Context(), h.symbolOr(req.Symbol), req.Limit)
	if err != nil {
		h.logger.Error("recent trade events", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusHandler) symbolOr(s string) string {
	if s == "" {
		return h.symbol
	}
	return s
}
