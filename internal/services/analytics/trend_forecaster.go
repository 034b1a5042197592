package analytics

import (
	"fmt"
	"math"
	"time"

	"ShrimpCast/internal/domain/models"
	domsvc "ShrimpCast/internal/domain/service"
	"ShrimpCast/internal/services/features"
	"ShrimpCast/pkg/util"
)

const (
	// MinSamples is the smallest sample count any fit accepts.
	MinSamples          = 5
	DefaultLookbackDays = 90
	DefaultEMAAlpha     = 0.3
	DefaultEMADamping   = 0.5

	intervalZ          = 1.96
	intervalConfidence = 0.95
)

// TrendOption configures TrendForecaster.
type TrendOption func(*TrendConfig)

// TrendConfig holds the smoothing parameters of the forecaster.
type TrendConfig struct {
	EMAAlpha   float64
	EMADamping float64
	MinSamples int
}

// WithEMAAlpha sets the EMA smoothing factor.
func WithEMAAlpha(alpha float64) TrendOption {
	return func(c *TrendConfig) {
		if alpha > 0 && alpha <= 1 {
			c.EMAAlpha = alpha
		}
	}
}

// WithEMADamping sets how much of the EMA correction reaches the point estimate.
func WithEMADamping(d float64) TrendOption {
	return func(c *TrendConfig) {
		if d >= 0 && d <= 1 {
			c.EMADamping = d
		}
	}
}

// TrendForecaster blends a linear trend with a damped EMA correction.
type TrendForecaster struct {
	cfg TrendConfig
}

func NewTrendForecaster(opts ...TrendOption) *TrendForecaster {
	cfg := TrendConfig{
		EMAAlpha:   DefaultEMAAlpha,
		EMADamping: DefaultEMADamping,
		MinSamples: MinSamples,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TrendForecaster{cfg: cfg}
}

// ForecastPublic forecasts series daysAhead days past today using the points
// of the last lookbackDays days (0 selects the default window).
//
// The interval is centred on the trend value, not on the EMA-adjusted point,
// so a strong short-term deviation can place the point outside it.
func (f *TrendForecaster) ForecastPublic(series models.TimeSeries, daysAhead, lookbackDays int, today time.Time) (models.ForecastResult, error) {
	if daysAhead < 0 {
		return models.ForecastResult{}, fmt.Errorf("%w: days ahead must be >= 0, got %d", models.ErrInvalidArgument, daysAhead)
	}
	if lookbackDays == 0 {
		lookbackDays = DefaultLookbackDays
	}
	if lookbackDays < 0 {
		return models.ForecastResult{}, fmt.Errorf("%w: lookback must be positive, got %d", models.ErrInvalidArgument, lookbackDays)
	}
	if err := series.Validate(); err != nil {
		return models.ForecastResult{}, err
	}

	today = util.Day(today)
	win := features.Window(series, lookbackDays, today)
	n := win.Len()
	if n < f.cfg.MinSamples {
		return models.ForecastResult{}, &models.InsufficientDataError{What: "observations in lookback window", Have: n, Need: f.cfg.MinSamples}
	}

	x := features.DayOffsets(win.Points)
	y := features.Prices(win.Points)
	fit, err := fitLine(x, y)
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("trend fit %s: %w", series.Key, err)
	}

	earliest := win.Points[0].Date
	offset := float64(util.DaysBetween(earliest, today) + daysAhead)
	base := fit.Intercept + fit.Slope*offset

	ema := features.EMA(y, f.cfg.EMAAlpha)
	adjustment := ema[n-1] - y[n-1]
	point := base + f.cfg.EMADamping*adjustment

	half := intervalZ * fit.StdErrSlope * math.Sqrt(1+1/float64(n))

	trend := models.TrendFalling
	if fit.Slope > 0 {
		trend = models.TrendRising
	}

	return models.ForecastResult{
		Caliber:         series.Key.Caliber,
		TargetDate:      util.AddDays(today, daysAhead),
		DaysAhead:       daysAhead,
		PointEstimate:   point,
		BaseEstimate:    base,
		EMAAdjustment:   adjustment,
		IntervalLow:     base - half,
		IntervalHigh:    base + half,
		ConfidenceLevel: intervalConfidence,
		TrustScore:      TrustScore(fit.RSquared, n),
		SlopePerDay:     fit.Slope,
		Intercept:       fit.Intercept,
		RSquared:        fit.RSquared,
		PValue:          fit.PValue,
		StdErrSlope:     fit.StdErrSlope,
		Volatility:      popStdDev(fit.Residuals),
		SampleCount:     n,
		LastPrice:       y[n-1],
		Trend:           trend,
	}, nil
}

// SampleSizeFactor discounts fits made on few samples.
func SampleSizeFactor(n int) float64 {
	switch {
	case n < 10:
		return 0.5
	case n < 30:
		return 0.7
	case n < 60:
		return 0.85
	default:
		return 1.0
	}
}

// TrustScore is r² scaled by SampleSizeFactor. It is a ranking heuristic,
// not a statistical confidence level.
func TrustScore(rSquared float64, n int) float64 {
	return clamp(rSquared*SampleSizeFactor(n), 0, 1)
}

var _ domsvc.TrendForecaster = (*TrendForecaster)(nil)
