package api

import (
	"context"
	"errors"
	"time"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
	"FieldScan/internal/usecase"
	xhttp "FieldScan/pkg/http"
	xlogger "FieldScan/pkg/logger"
	xutil "FieldScan/pkg/util"

	"github.com/labstack/echo/v4"
)

// Scanner is the batch control surface of the scan orchestrator.
type Scanner interface {
	Start(ctx context.Context, mode models.ScanMode, tickers []string) error
	Stop() bool
	Progress() models.ScanProgress
	Last() *models.ScanResult
}

type Reviewer interface {
	Review(ctx context.Context) (models.ReviewSummary, error)
}

// ScanEchoHandler exposes scan control and read-only queries over the signal store.
type ScanEchoHandler struct {
	logger   *xlogger.Logger
	scanner  Scanner
	reviewer Reviewer
	store    domrepo.SignalStore
}

func NewScanEchoHandler(logger *xlogger.Logger, scanner Scanner, reviewer Reviewer, store domrepo.SignalStore) *ScanEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ScanEchoHandler{logger: logger, scanner: scanner, reviewer: reviewer, store: store}
}

func (h *ScanEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/scans", h.StartScan)
	g.POST("/scans/stop", h.StopScan)
	g.GET("/scans/status", h.Status)
	g.GET("/scans/last", h.LastScan)
	g.GET("/signals", h.Signals)
	g.POST("/signals/review", h.Review)
	g.GET("/trades", h.Trades)
	g.GET("/health", h.Health)
}

func (h *ScanEchoHandler) StartScan(c echo.Context) error {
	req := &models.StartScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tickers := make([]string, 0, len(req.Tickers))
	for _, t := range req.Tickers {
		if t = xutil.NormalizeTicker(t); t != "" {
			tickers = append(tickers, t)
		}
	}

	mode := models.ScanMode(req.Mode)
	err := h.scanner.Start(c.Request().Context(), mode, tickers)
	switch {
	case errors.Is(err, usecase.ErrScanRunning):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a scan is already running"))
	case err != nil:
		h.logger.Error("start scan", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not start scan").WithError(err))
	}
	h.logger.Info("scan requested", xlogger.String("mode", req.Mode), xlogger.Int("tickers", len(tickers)))
	return xhttp.AcceptedResponse(c, h.scanner.Progress())
}

func (h *ScanEchoHandler) StopScan(c echo.Context) error {
	if !h.scanner.Stop() {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("no scan is running"))
	}
	return xhttp.AcceptedResponse(c, h.scanner.Progress())
}

func (h *ScanEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.scanner.Progress())
}

// LastScan returns the summary of the last finished batch. ?full=true adds the records.
func (h *ScanEchoHandler) LastScan(c echo.Context) error {
	last := h.scanner.Last()
	if last == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no scan has finished yet"))
	}
	if c.QueryParam("full") == "true" {
		return xhttp.SuccessResponse(c, last)
	}
	return xhttp.SuccessResponse(c, last.Summary())
}

func (h *ScanEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.store.ListSignals(c.Request().Context(), models.SignalQuery{
		Ticker: xutil.NormalizeTicker(req.Ticker),
		Status: models.SignalStatus(req.Status),
		Mode:   models.ScanMode(req.Mode),
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("list signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScanEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q := models.TradeQuery{Ticker: xutil.NormalizeTicker(req.Ticker), Limit: req.Limit}
	if req.From != "" {
		from, ok := xutil.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from must be a date, RFC3339 time or unix seconds"))
		}
		q.From = from
	}
	if req.To != "" {
		to, ok := xutil.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to", "to must be a date, RFC3339 time or unix seconds"))
		}
		q.To = xutil.EndOfDay(to)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to", "to is before from"))
	}

	rows, err := h.store.ListTrades(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("list trades", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScanEchoHandler) Review(c echo.Context) error {
	sum, err := h.reviewer.Review(c.Request().Context())
	if err != nil {
		h.logger.Error("review signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("review failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *ScanEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		h.logger.Warn("store unhealthy", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("signal store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   "ok",
		"scanning": h.scanner.Progress().Running,
	})
}
