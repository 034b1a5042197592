package api

import (
	"time"

	models "ShrimpCast/internal/domain/models"
	"ShrimpCast/internal/service/metrics"
	xhttp "ShrimpCast/pkg/http"
	"ShrimpCast/pkg/util"

	"github.com/labstack/echo/v4"
)

func (h *ForecastEchoHandler) Consolidate(c echo.Context) error {
	start := time.Now()
	req := &models.ConsolidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDate(req.Date)

	res, err := h.ingest.ConsolidateDay(c.Request().Context(), date, req.ToSourceQuotes())
	if err != nil {
		return h.fail(c, "prices_consolidate", start, err)
	}
	return h.ok(c, "prices_consolidate", start, res)
}

func (h *ForecastEchoHandler) RecordDispatch(c echo.Context) error {
	start := time.Now()
	req := &models.DispatchPriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDate(req.Date)

	rec, err := h.ingest.RecordDispatch(c.Request().Context(), models.DispatchRecord{
		Caliber:      req.Caliber,
		Presentation: models.Presentation(req.Presentation),
		Date:         date,
		Price:        req.Price,
		Origin:       req.Origin,
	})
	if err != nil {
		return h.fail(c, "prices_dispatch", start, err)
	}
	metrics.Observe("prices_dispatch", start, "")
	return xhttp.CreatedResponse(c, rec)
}

// PublicSeries returns the stored public price history of one caliber.
func (h *ForecastEchoHandler) PublicSeries(c echo.Context) error {
	start := time.Now()
	req := &models.PublicSeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, _ := util.ParseDate(req.From)
	to, _ := util.ParseDate(req.To)

	ts, err := h.svc.PublicSeries(c.Request().Context(), req.Caliber, from, to)
	if err != nil {
		return h.fail(c, "prices_public", start, err)
	}
	return h.ok(c, "prices_public", start, ts)
}
