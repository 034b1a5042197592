package api

import (
	"context"
	"net/http"
	"time"

	xhttp "ShrimpCast/pkg/http"
	xlogger "ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/queue"

	"github.com/labstack/echo/v4"
)

func (h *ForecastEchoHandler) Status(c echo.Context) error {
	start := time.Now()
	st, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return h.fail(c, "database_status", start, err)
	}
	if in, ok := h.jobs.(queue.Inspector); ok {
		qs, err := in.Stats(c.Request().Context())
		if err != nil {
			h.logger.Warn("queue stats unavailable", xlogger.Error(err))
		} else {
			st.Jobs = map[string]int64{"ready": qs.Ready, "delayed": qs.Delayed, "dead": qs.Dead}
		}
	}
	return h.ok(c, "database_status", start, st)
}

// Health pings the store with a short deadline.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
