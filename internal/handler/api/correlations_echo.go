package api

import (
	"time"

	models "ShrimpCast/internal/domain/models"
	"ShrimpCast/internal/service/metrics"
	"ShrimpCast/internal/usecase"
	xhttp "ShrimpCast/pkg/http"
	xlogger "ShrimpCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type correlationResult struct {
	Correlation models.CorrelationView `json:"correlation"`
	Applied     bool                   `json:"applied"`
}

type correlationsResult struct {
	Current *models.CorrelationView  `json:"current"`
	History []models.CorrelationView `json:"history"`
}

type recomputeResult struct {
	Queued    int `json:"queued"`
	Coalesced int `json:"coalesced"`
}

func (h *ForecastEchoHandler) CalculateCorrelation(c echo.Context) error {
	start := time.Now()
	req := &models.CorrelationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	m, applied, err := h.svc.FitCorrelation(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation), req.Lookback)
	if err != nil {
		return h.fail(c, "correlation_calculate", start, err)
	}
	return h.ok(c, "correlation_calculate", start, correlationResult{Correlation: m.View(), Applied: applied})
}

func (h *ForecastEchoHandler) Correlations(c echo.Context) error {
	start := time.Now()
	req := &models.CorrelationQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cur, hist, err := h.svc.Correlations(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation), req.Limit)
	if err != nil {
		return h.fail(c, "correlations", start, err)
	}
	out := correlationsResult{History: make([]models.CorrelationView, 0, len(hist))}
	if cur != nil {
		v := cur.View()
		out.Current = &v
	}
	for _, m := range hist {
		out.History = append(out.History, m.View())
	}
	return h.ok(c, "correlations", start, out)
}

// Recompute queues refits and answers 202 before any of them ran.
func (h *ForecastEchoHandler) Recompute(c echo.Context) error {
	start := time.Now()
	req := &models.RecomputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue is not configured"))
	}

	n, dup, err := usecase.EnqueueRecompute(c.Request().Context(), h.jobs, req.Keys, req.Lookback)
	if err != nil {
		h.logger.Warn("recompute enqueue failed", xlogger.Int("queued", n), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue unavailable").WithError(err))
	}
	metrics.Observe("correlation_recompute", start, "")
	return xhttp.AcceptedResponse(c, recomputeResult{Queued: n, Coalesced: dup})
}
