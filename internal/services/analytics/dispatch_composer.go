package analytics

import (
	"fmt"
	"math"

	"ShrimpCast/internal/domain/models"
	domsvc "ShrimpCast/internal/domain/service"
)

const (
	DefaultHeadlessRatio = 0.65
	DefaultOtherRatio    = 0.70
)

// ComposerOption configures DispatchComposer.
type ComposerOption func(*ComposerConfig)

// ComposerConfig holds the fixed ratios used when no correlation is usable.
type ComposerConfig struct {
	HeadlessRatio float64
	OtherRatio    float64
	MinSamples    int
}

// WithFallbackRatios sets the headless and default fallback ratios.
func WithFallbackRatios(headless, other float64) ComposerOption {
	return func(c *ComposerConfig) {
		if headless > 0 {
			c.HeadlessRatio = headless
		}
		if other > 0 {
			c.OtherRatio = other
		}
	}
}

// DispatchComposer translates public forecasts into dispatch forecasts.
type DispatchComposer struct {
	cfg ComposerConfig
}

func NewDispatchComposer(opts ...ComposerOption) *DispatchComposer {
	cfg := ComposerConfig{
		HeadlessRatio: DefaultHeadlessRatio,
		OtherRatio:    DefaultOtherRatio,
		MinSamples:    MinSamples,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DispatchComposer{cfg: cfg}
}

// FallbackRatio is the dispatch/public ratio assumed for p without a fit.
func (c *DispatchComposer) FallbackRatio(p models.Presentation) float64 {
	if p == models.PresentationHeadless {
		return c.cfg.HeadlessRatio
	}
	return c.cfg.OtherRatio
}

// ForecastDispatch applies corr to public. A nil corr, or one fitted on fewer
// than MinSamples dates, selects the ratio fallback.
func (c *DispatchComposer) ForecastDispatch(caliber string, p models.Presentation, public models.ForecastResult, corr *models.CorrelationModel) (models.DispatchForecast, error) {
	if public.SampleCount < c.cfg.MinSamples {
		return models.DispatchForecast{}, fmt.Errorf("%w: public forecast for %s is empty", models.ErrInvalidArgument, caliber)
	}
	out := models.DispatchForecast{
		Caliber:       caliber,
		PublicCaliber: public.Caliber,
		Presentation:  p,
		TargetDate:    public.TargetDate,
		Public:        public,
	}

	if corr == nil || corr.SampleCount < c.cfg.MinSamples {
		reason := "no correlation model"
		if corr != nil {
			reason = fmt.Sprintf("correlation fitted on %d dates", corr.SampleCount)
		}
		ratio := c.FallbackRatio(p)
		out.Method = models.MethodRatioFallback
		out.Estimate = public.PointEstimate * ratio
		out.IntervalLow = public.IntervalLow * ratio
		out.IntervalHigh = public.IntervalHigh * ratio
		out.TrustLevel = models.TrustLow
		out.Fallback = &models.RatioFallbackProvenance{Ratio: ratio, Reason: reason}
		return out, nil
	}

	estimate := corr.Intercept + corr.Slope*public.PointEstimate
	publicErr := public.HalfWidth()
	corrErr := corr.RatioStdDev * public.PointEstimate
	total := math.Hypot(publicErr, corrErr)
	trust := clamp(public.TrustScore*corr.PearsonR, 0, 1)

	out.Method = models.MethodFitted
	out.Estimate = estimate
	out.IntervalLow = estimate - total
	out.IntervalHigh = estimate + total
	out.TrustScore = trust
	out.TrustLevel = trustLevel(trust)
	out.Fitted = &models.FittedProvenance{
		Correlation:      *corr,
		PublicError:      publicErr,
		CorrelationError: math.Abs(corrErr),
		TotalError:       total,
	}
	return out, nil
}

func trustLevel(score float64) models.TrustLevel {
	switch {
	case score >= 0.7:
		return models.TrustHigh
	case score >= 0.4:
		return models.TrustMedium
	default:
		return models.TrustLow
	}
}

var _ domsvc.DispatchComposer = (*DispatchComposer)(nil)
