package service

import (
	"time"

	"ShrimpCast/internal/domain/models"
)

// Consolidator fuses same-day quotes from several sources into one price per caliber.
type Consolidator interface {
	Consolidate(date time.Time, quotes models.SourceQuotes) (map[string]models.ConsolidatedPrice, error)
}

// TrendForecaster forecasts a public series daysAhead days past today.
type TrendForecaster interface {
	ForecastPublic(series models.TimeSeries, daysAhead, lookbackDays int, today time.Time) (models.ForecastResult, error)
}

// CorrelationFitter fits dispatch prices against public prices.
type CorrelationFitter interface {
	FitCorrelation(public, dispatch models.TimeSeries, lookbackDays int, today time.Time) (models.CorrelationModel, error)
}

// DispatchComposer turns a public forecast into a dispatch forecast. A nil
// correlation selects the ratio fallback.
type DispatchComposer interface {
	ForecastDispatch(caliber string, p models.Presentation, public models.ForecastResult, corr *models.CorrelationModel) (models.DispatchForecast, error)
}

// PurchaseOptimizer derives buy prices from a dispatch estimate.
type PurchaseOptimizer interface {
	QuotePurchase(dispatchEstimate float64, daysAhead int) (models.PurchaseQuote, error)
}
