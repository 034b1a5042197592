package api

import (
	"errors"
	"time"

	models "ShrimpCast/internal/domain/models"
	xhttp "ShrimpCast/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *ForecastEchoHandler) ForecastPublic(c echo.Context) error {
	start := time.Now()
	req := &models.PublicForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.ForecastPublic(c.Request().Context(), req.Caliber, *req.Days, req.Lookback)
	if err != nil {
		return h.fail(c, "forecast_public", start, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return h.ok(c, "forecast_public", start, res)
}

func (h *ForecastEchoHandler) ForecastDispatch(c echo.Context) error {
	start := time.Now()
	req := &models.DispatchForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.ForecastDispatch(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation), *req.Days, req.Lookback)
	if err != nil {
		return h.fail(c, "forecast_dispatch", start, err)
	}
	return h.ok(c, "forecast_dispatch", start, res)
}

func (h *ForecastEchoHandler) ForecastBatch(c echo.Context) error {
	start := time.Now()
	req := &models.BatchForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ps := make([]models.Presentation, len(req.Presentations))
	for i, p := range req.Presentations {
		ps[i] = models.Presentation(p)
	}

	res, err := h.svc.ForecastBatch(c.Request().Context(), req.Calibers, ps, *req.Days)
	if err != nil {
		return h.fail(c, "forecast_batch", start, err)
	}
	return h.ok(c, "forecast_batch", start, res)
}

// Quote answers 409 with the quote in data when the market is not viable.
func (h *ForecastEchoHandler) Quote(c echo.Context) error {
	start := time.Now()
	req := &models.PurchaseQuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	plan, err := h.svc.QuotePurchase(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation), *req.Days)
	if errors.Is(err, models.ErrNotViable) {
		return h.fail(c, "purchase_quote", start,
			xhttp.ConflictError("ERR_NOT_VIABLE", err.Error()).WithError(err).WithPayload(plan))
	}
	if err != nil {
		return h.fail(c, "purchase_quote", start, err)
	}
	return h.ok(c, "purchase_quote", start, plan)
}

func (h *ForecastEchoHandler) Report(c echo.Context) error {
	start := time.Now()
	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.svc.FeasibilityReport(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation))
	if err != nil {
		return h.fail(c, "purchase_report", start, err)
	}
	return h.ok(c, "purchase_report", start, rep)
}

func (h *ForecastEchoHandler) Spread(c echo.Context) error {
	start := time.Now()
	req := &models.SpreadRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.MarketSpread(c.Request().Context(), req.Caliber, models.Presentation(req.Presentation), req.DispatchPrice)
	if err != nil {
		return h.fail(c, "market_spread", start, err)
	}
	return h.ok(c, "market_spread", start, res)
}
