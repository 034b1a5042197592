package models

import (
	"fmt"
	"time"
)

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
)

// ForecastResult is a public-price forecast.
//
// ConfidenceLevel is the nominal coverage of [IntervalLow, IntervalHigh].
// TrustScore is a heuristic (r² scaled by a sample-size factor) and is not a
// probability; it only ranks forecasts against each other.
type ForecastResult struct {
	Caliber         string    `json:"caliber"`
	TargetDate      time.Time `json:"target_date"`
	DaysAhead       int       `json:"days_ahead"`
	PointEstimate   float64   `json:"point_estimate"`
	BaseEstimate    float64   `json:"base_estimate"`
	EMAAdjustment   float64   `json:"ema_adjustment"`
	IntervalLow     float64   `json:"interval_low"`
	IntervalHigh    float64   `json:"interval_high"`
	ConfidenceLevel float64   `json:"confidence_level"`
	TrustScore      float64   `json:"trust_score"`
	SlopePerDay     float64   `json:"slope_per_day"`
	Intercept       float64   `json:"intercept"`
	RSquared        float64   `json:"r_squared"`
	PValue          float64   `json:"p_value"`
	StdErrSlope     float64   `json:"std_err_slope"`
	Volatility      float64   `json:"volatility"`
	SampleCount     int       `json:"sample_count"`
	LastPrice       float64   `json:"last_price"`
	Trend           Trend     `json:"trend"`
}

// HalfWidth is half the width of the forecast interval.
func (f ForecastResult) HalfWidth() float64 {
	return (f.IntervalHigh - f.IntervalLow) / 2
}

type DispatchMethod string

const (
	MethodFitted        DispatchMethod = "fitted"
	MethodRatioFallback DispatchMethod = "ratio_fallback"
)

// TrustLevel is the coarse label attached to a dispatch forecast.
type TrustLevel string

const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// FittedProvenance records how a fitted dispatch forecast was derived.
type FittedProvenance struct {
	Correlation      CorrelationModel `json:"correlation"`
	PublicError      float64          `json:"public_error"`
	CorrelationError float64          `json:"correlation_error"`
	TotalError       float64          `json:"total_error"`
}

// RatioFallbackProvenance records the fixed ratio used when no usable
// correlation existed.
type RatioFallbackProvenance struct {
	Ratio  float64 `json:"ratio"`
	Reason string  `json:"reason"`
}

// DispatchForecast is a tagged variant: exactly one of Fitted or Fallback is
// set, matching Method. Public is the forecast it was derived from.
type DispatchForecast struct {
	Caliber       string                   `json:"caliber"`
	PublicCaliber string                   `json:"public_caliber"`
	Presentation  Presentation             `json:"presentation"`
	Method        DispatchMethod           `json:"method"`
	TargetDate    time.Time                `json:"target_date"`
	Estimate      float64                  `json:"estimate"`
	IntervalLow   float64                  `json:"interval_low"`
	IntervalHigh  float64                  `json:"interval_high"`
	TrustScore    float64                  `json:"trust_score"`
	TrustLevel    TrustLevel               `json:"trust_level"`
	Public        ForecastResult           `json:"public"`
	Fitted        *FittedProvenance        `json:"fitted,omitempty"`
	Fallback      *RatioFallbackProvenance `json:"fallback,omitempty"`
}

// Validate checks that the variant tag matches its payload.
func (d DispatchForecast) Validate() error {
	switch d.Method {
	case MethodFitted:
		if d.Fitted == nil || d.Fallback != nil {
			return fmt.Errorf("%w: fitted forecast must carry only fitted provenance", ErrInvalidArgument)
		}
	case MethodRatioFallback:
		if d.Fallback == nil || d.Fitted != nil {
			return fmt.Errorf("%w: fallback forecast must carry only fallback provenance", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown dispatch method %q", ErrInvalidArgument, d.Method)
	}
	return nil
}

const (
	QuoteStatusViable    = "VIABLE"
	QuoteStatusNotViable = "NOT_VIABLE"
)

// PurchaseQuote is the buy-price band derived from a dispatch estimate.
type PurchaseQuote struct {
	DispatchEstimate    float64 `json:"dispatch_estimate"`
	MinimumBuyPrice     float64 `json:"minimum_buy_price,omitempty"`
	RecommendedBuyPrice float64 `json:"recommended_buy_price,omitempty"`
	MarginMinimum       float64 `json:"margin_minimum"`
	MarginRecommended   float64 `json:"margin_recommended"`
	HorizonDays         int     `json:"horizon_days"`
	HorizonRiskFactor   float64 `json:"horizon_risk_factor"`
	Viable              bool    `json:"viable"`
	Status              string  `json:"status"`
}

// PurchasePlan bundles a quote with the forecast it was built from.
type PurchasePlan struct {
	Dispatch DispatchForecast `json:"dispatch"`
	Quote    PurchaseQuote    `json:"quote"`
}

// FeasibilityReport is a human-oriented summary of a purchase plan.
type FeasibilityReport struct {
	Caliber        string       `json:"caliber"`
	Presentation   Presentation `json:"presentation"`
	GeneratedAt    time.Time    `json:"generated_at"`
	Plan           PurchasePlan `json:"plan"`
	Recommendation string       `json:"recommendation"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// MarketSpread compares the latest public price with a dispatch price.
type MarketSpread struct {
	Caliber        string       `json:"caliber"`
	PublicCaliber  string       `json:"public_caliber"`
	Presentation   Presentation `json:"presentation"`
	PublicPrice    float64      `json:"public_price"`
	PublicDate     time.Time    `json:"public_date"`
	DispatchPrice  float64      `json:"dispatch_price"`
	SpreadAbsolute float64      `json:"spread_absolute"`
	SpreadPercent  float64      `json:"spread_percent"`
	Ratio          float64      `json:"ratio"`
}

// BatchForecast is the outcome of a many-key forecast run. Keys are
// "<caliber>_<presentation>".
type BatchForecast struct {
	DaysAhead int                         `json:"days_ahead"`
	Results   map[string]DispatchForecast `json:"results"`
	Errors    map[string]string           `json:"errors,omitempty"`
}
