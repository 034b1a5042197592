package analytics

import (
	"fmt"
	"math"
	"time"

	"ShrimpCast/internal/domain/models"
	domsvc "ShrimpCast/internal/domain/service"
	"ShrimpCast/internal/services/features"
	"ShrimpCast/pkg/util"

	"gonum.org/v1/gonum/stat"
)

// CorrelationFitter fits dispatch prices against public prices on their common dates.
type CorrelationFitter struct {
	minSamples int
}

func NewCorrelationFitter() *CorrelationFitter {
	return &CorrelationFitter{minSamples: MinSamples}
}

// FitCorrelation joins the two series on date within the lookback window and
// regresses dispatch on public. The result carries no ID or ComputedAt; the
// caller stamps those before persisting.
func (f *CorrelationFitter) FitCorrelation(public, dispatch models.TimeSeries, lookbackDays int, today time.Time) (models.CorrelationModel, error) {
	if lookbackDays == 0 {
		lookbackDays = DefaultLookbackDays
	}
	if lookbackDays < 0 {
		return models.CorrelationModel{}, fmt.Errorf("%w: lookback must be positive, got %d", models.ErrInvalidArgument, lookbackDays)
	}
	if dispatch.Key.Kind != models.SeriesDispatch {
		return models.CorrelationModel{}, fmt.Errorf("%w: second series must be a dispatch series, got %s", models.ErrInvalidArgument, dispatch.Key)
	}
	if err := public.Validate(); err != nil {
		return models.CorrelationModel{}, err
	}
	if err := dispatch.Validate(); err != nil {
		return models.CorrelationModel{}, err
	}

	today = util.Day(today)
	joined := features.InnerJoin(
		features.Window(public, lookbackDays, today),
		features.Window(dispatch, lookbackDays, today),
	)
	if joined.Len() < f.minSamples {
		return models.CorrelationModel{}, &models.InsufficientDataError{What: "joined dates", Have: joined.Len(), Need: f.minSamples}
	}

	ratios := features.Ratios(joined.Right, joined.Left)
	ratioMean, ratioVar := stat.PopMeanVariance(ratios, nil)

	fit, err := fitLine(joined.Left, joined.Right)
	if err != nil {
		return models.CorrelationModel{}, fmt.Errorf("correlation fit %s: %w", dispatch.Key, err)
	}

	return models.CorrelationModel{
		Caliber:        dispatch.Key.Caliber,
		PublicCaliber:  public.Key.Caliber,
		Presentation:   dispatch.Key.Presentation,
		Slope:          fit.Slope,
		Intercept:      fit.Intercept,
		RSquared:       fit.RSquared,
		PearsonR:       fit.R,
		PValue:         fit.PValue,
		ResidualStdDev: popStdDev(fit.Residuals),
		SampleCount:    joined.Len(),
		RatioMean:      ratioMean,
		RatioStdDev:    math.Sqrt(ratioVar),
		LookbackDays:   lookbackDays,
		ComputedOn:     today,
	}, nil
}

var _ domsvc.CorrelationFitter = (*CorrelationFitter)(nil)
