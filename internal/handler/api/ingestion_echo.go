package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/internal/service/metrics"
	"BarPull/internal/usecase"
	xhttp "BarPull/pkg/http"
	xlogger "BarPull/pkg/logger"
	"BarPull/pkg/util"
)

// IngestionHandler exposes the ingestion engine and the read side over HTTP.
type IngestionHandler struct {
	logger     *xlogger.Logger
	engine     *usecase.Engine
	bars       *usecase.BarsUseCase
	dispatcher domrepo.JobDispatcher
	now        func() time.Time
}

// NewIngestionHandler wires the handler. A nil dispatcher makes every
// async request run inline.
func NewIngestionHandler(logger *xlogger.Logger, engine *usecase.Engine, bars *usecase.BarsUseCase, dispatcher domrepo.JobDispatcher) *IngestionHandler {
	metrics.Register()
	return &IngestionHandler{logger: logger, engine: engine, bars: bars, dispatcher: dispatcher, now: time.Now}
}

func (h *IngestionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/healthz", h.Health)
	g.POST("/backfill", h.Backfill)
	g.POST("/repair", h.Repair)
	g.GET("/quality", h.Quality)
	g.GET("/quality/history", h.QualityHistory)
	g.GET("/coverage", h.Coverage)
	g.GET("/bars", h.Bars)
	g.GET("/jobs/last", h.LastJob)
}

// QueuedResponse acknowledges a job handed to the worker pool.
type QueuedResponse struct {
	Queued    bool   `json:"queued"`
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (h *IngestionHandler) observe(endpoint string, start time.Time, err error) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
	}
}

func (h *IngestionHandler) Backfill(c echo.Context) error {
	start := time.Now()
	req := &models.BackfillCommand{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = util.NormalizeSymbol(req.Symbol)

	if req.Async && h.dispatcher != nil {
		err := h.enqueue(c.Request().Context(), usecase.MsgBackfill, req)
		h.observe("backfill", start, err)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue unavailable").WithError(err))
		}
		return xhttp.AcceptedResponse(c, QueuedResponse{Queued: true, Type: usecase.MsgBackfill, Symbol: req.Symbol, Timeframe: req.Timeframe})
	}

	res, err := h.engine.Backfill(c.Request().Context(), *req)
	h.observe("backfill", start, err)
	if err != nil {
		h.logger.Warn("backfill request failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
	}
	return xhttp.DataResponse(c, jobStatusCode(err), res)
}

func (h *IngestionHandler) Repair(c echo.Context) error {
	start := time.Now()
	req := &models.RepairCommand{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = util.NormalizeSymbol(req.Symbol)

	if req.Async && h.dispatcher != nil {
		err := h.enqueue(c.Request().Context(), usecase.MsgRepair, req)
		h.observe("repair", start, err)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue unavailable").WithError(err))
		}
		return xhttp.AcceptedResponse(c, QueuedResponse{Queued: true, Type: usecase.MsgRepair, Symbol: req.Symbol, Timeframe: req.Timeframe})
	}

	res, err := h.engine.RepairGaps(c.Request().Context(), *req)
	h.observe("repair", start, err)
	if err != nil {
		h.logger.Warn("repair request failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
	}
	return xhttp.DataResponse(c, jobStatusCode(err), res)
}

func (h *IngestionHandler) enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return h.dispatcher.PublishMessage(ctx, msgType, payload)
}

func (h *IngestionHandler) Quality(c echo.Context) error {
	start := time.Now()
	req := &models.QualityCommand{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.engine.AssessQuality(c.Request().Context(), *req)
	h.observe("quality", start, err)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *IngestionHandler) QualityHistory(c echo.Context) error {
	start := time.Now()
	req := &models.QualityHistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snaps, err := h.bars.QualityHistory(c.Request().Context(), util.NormalizeSymbol(req.Symbol), models.Timeframe(req.Timeframe), req.Limit)
	h.observe("quality_history", start, err)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

func (h *IngestionHandler) Coverage(c echo.Context) error {
	start := time.Now()
	req := &models.CoverageQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cov, err := h.bars.Coverage(c.Request().Context(), util.NormalizeSymbol(req.Symbol), models.Timeframe(req.Timeframe))
	h.observe("coverage", start, err)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, cov)
}

// Bars defaults to the limit's worth of bars ending now.
func (h *IngestionHandler) Bars(c echo.Context) error {
	start := time.Now()
	req := &models.BarsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := models.Timeframe(req.Timeframe)

	to := xhttp.ParseTimeDefault(req.To, h.now().UTC())
	from := xhttp.ParseTimeDefault(req.From, to.Add(-time.Duration(req.Limit)*tf.Duration()))
	if req.From != "" {
		if _, ok := xhttp.ParseTime(req.From); !ok {
			return xhttp.AppErrorResponse(c, invalidBound("from", req.From))
		}
	}
	if req.To != "" {
		if _, ok := xhttp.ParseTime(req.To); !ok {
			return xhttp.AppErrorResponse(c, invalidBound("to", req.To))
		}
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    util.NormalizeSymbol(req.Symbol),
		Timeframe: tf,
		From:      from,
		To:        to,
		Limit:     req.Limit,
	})
	h.observe("bars", start, err)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *IngestionHandler) LastJob(c echo.Context) error {
	req := &models.JobStatusQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ev, err := h.engine.LastStatus(c.Request().Context(), models.JobKind(req.Kind), req.Symbol, models.Timeframe(req.Timeframe))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *IngestionHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.bars.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// jobStatusCode maps a job error to the HTTP status of its result body.
func jobStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domrepo.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domrepo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domrepo.ErrInstrumentInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domrepo.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalidBound(field, value string) *xhttp.AppError {
	e := xhttp.BadRequestErrorf("invalid %s %q", field, value).WithParam("value", value)
	e.Field = field
	return e
}

func toAppError(err error) *xhttp.AppError {
	status := jobStatusCode(err)
	if status == http.StatusInternalServerError {
		return xhttp.InternalError("internal error").WithError(err)
	}
	return xhttp.ErrorForStatus(status, err.Error()).WithError(err)
}
