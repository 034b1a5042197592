package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	models "ShrimpCast/internal/domain/models"
	"ShrimpCast/internal/service/metrics"
	"ShrimpCast/internal/service/ratelimit"
	"ShrimpCast/internal/usecase"
	xhttp "ShrimpCast/pkg/http"
	xlogger "ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler serves the forecasting API.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.ForecastService
	ingest  *usecase.PriceIngestor
	jobs    queue.Publisher
	limiter *ratelimit.Limiter
	burst   int
	refill  time.Duration
}

// HandlerOption configures ForecastEchoHandler.
type HandlerOption func(*ForecastEchoHandler)

// WithRateLimit limits the expensive write routes per client. A burst of 0
// disables limiting.
func WithRateLimit(burst int, refill time.Duration) HandlerOption {
	return func(h *ForecastEchoHandler) {
		h.burst = burst
		h.refill = refill
	}
}

func NewForecastEchoHandler(logger *xlogger.Logger, svc *usecase.ForecastService, ingest *usecase.PriceIngestor, jobs queue.Publisher, opts ...HandlerOption) *ForecastEchoHandler {
	h := &ForecastEchoHandler{
		logger:  logger.Named("api"),
		svc:     svc,
		ingest:  ingest,
		jobs:    jobs,
		limiter: ratelimit.New(),
		burst:   10,
		refill:  6 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	metrics.Register()
	return h
}

// PruneRateLimits drops idle client buckets every interval until ctx ends.
// A bucket idle for burst*refill is full again, so dropping it changes
// nothing for that client.
func (h *ForecastEchoHandler) PruneRateLimits(ctx context.Context, every time.Duration) {
	if h.burst <= 0 {
		return
	}
	h.limiter.RunPruner(ctx, every, time.Duration(h.burst)*h.refill)
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	limited := ratelimit.Middleware(h.limiter, h.burst, h.refill)

	g := e.Group("/api")
	g.POST("/prices/consolidate", h.Consolidate)
	g.POST("/prices/dispatch", h.RecordDispatch)
	g.GET("/prices/public", h.PublicSeries)

	g.GET("/forecast/public", h.ForecastPublic)
	g.GET("/forecast/dispatch", h.ForecastDispatch)
	g.POST("/forecast/batch", h.ForecastBatch)

	g.POST("/correlations/calculate", h.CalculateCorrelation, limited)
	g.GET("/correlations", h.Correlations)
	g.POST("/correlations/recompute", h.Recompute, limited)

	g.GET("/purchase/quote", h.Quote)
	g.GET("/purchase/report", h.Report)
	g.GET("/market/spread", h.Spread)

	g.GET("/database/status", h.Status)
	e.GET("/health", h.Health)
}

// fail maps a use case error to its HTTP answer and records it under endpoint.
func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	kind := usecase.ErrorKind(err)
	metrics.Observe(endpoint, start, kind)

	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return xhttp.AppErrorResponse(c, appErr)
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(m.status, m.code, err.Error()).WithError(err))
		}
	}
	h.logger.Error("request failed",
		xlogger.String("endpoint", endpoint),
		xlogger.String("path", c.Path()),
		xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}

// errorStatus maps domain errors to their answer. The first match wins.
var errorStatus = []struct {
	target error
	status int
	code   string
}{
	{models.ErrInsufficientData, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
	{models.ErrNoData, http.StatusNotFound, "ERR_NO_DATA"},
	{models.ErrNotViable, http.StatusConflict, "ERR_NOT_VIABLE"},
	{models.ErrInvalidArgument, http.StatusBadRequest, "ERR_INVALID_ARGUMENT"},
}

func (h *ForecastEchoHandler) ok(c echo.Context, endpoint string, start time.Time, data interface{}) error {
	metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, data)
}

var _ xhttp.Handler = (*ForecastEchoHandler)(nil)
