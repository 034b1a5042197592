package analytics

import (
	"errors"
	"testing"

	"ShrimpCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitCorrelationExactLinearRelation(t *testing.T) {
	public := linearSeries(models.PublicKey("16/20"), 90, 5, 0.01)
	dispatch := models.TimeSeries{Key: models.DispatchKey("16/20", models.PresentationHeadless)}
	for _, p := range public.Points {
		dispatch.Points = append(dispatch.Points, models.Point{Date: p.Date, Price: 0.85*p.Price - 0.50})
	}

	m, err := NewCorrelationFitter().FitCorrelation(public, dispatch, 90, day(89))
	require.NoError(t, err)

	assert.InDelta(t, 0.85, m.Slope, 1e-9)
	assert.InDelta(t, -0.50, m.Intercept, 1e-9)
	assert.InDelta(t, 1.0, m.RSquared, 1e-9)
	assert.InDelta(t, 1.0, m.PearsonR, 1e-9)
	assert.Equal(t, 90, m.SampleCount)
	assert.Equal(t, "16/20", m.Caliber)
	assert.Equal(t, "16/20", m.PublicCaliber)
	assert.Equal(t, models.PresentationHeadless, m.Presentation)
	assert.Equal(t, day(89), m.ComputedOn)
	assert.Equal(t, 90, m.LookbackDays)
	assert.Greater(t, m.RatioMean, 0.7)
	assert.Less(t, m.RatioMean, 0.8)
	assert.Greater(t, m.RatioStdDev, 0.0)
	assert.Equal(t, models.QualityExcellent, m.Quality())
	assert.Empty(t, m.ID)
	assert.True(t, m.ComputedAt.IsZero())
}

func TestFitCorrelationTooFewJoinedDates(t *testing.T) {
	public := linearSeries(models.PublicKey("26/30"), 10, 5, 0.01)
	dispatch := models.TimeSeries{Key: models.DispatchKey("30", models.PresentationWhole)}
	for _, d := range []int{7, 8, 9, 20, 21} {
		dispatch.Points = append(dispatch.Points, models.Point{Date: day(d), Price: 3.5})
	}

	_, err := NewCorrelationFitter().FitCorrelation(public, dispatch, 90, day(21))
	require.Error(t, err)

	var ide *models.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 3, ide.Have)
	assert.Equal(t, 5, ide.Need)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestFitCorrelationIsDeterministic(t *testing.T) {
	public := linearSeries(models.PublicKey("41/50"), 40, 4, 0.015)
	dispatch := models.TimeSeries{Key: models.DispatchKey("41/50", models.PresentationHeadless)}
	for i, p := range public.Points {
		noise := 0.03
		if i%3 == 0 {
			noise = -0.05
		}
		dispatch.Points = append(dispatch.Points, models.Point{Date: p.Date, Price: 0.7*p.Price + noise})
	}

	f := NewCorrelationFitter()
	a, err := f.FitCorrelation(public, dispatch, 60, day(39))
	require.NoError(t, err)
	b, err := f.FitCorrelation(public, dispatch, 60, day(39))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Less(t, a.RSquared, 1.0)
	assert.Greater(t, a.ResidualStdDev, 0.0)
}

func TestFitCorrelationRejectsPublicAsDispatch(t *testing.T) {
	public := linearSeries(models.PublicKey("16/20"), 10, 5, 0.01)
	_, err := NewCorrelationFitter().FitCorrelation(public, public, 90, day(9))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestCorrelationQualityThresholds(t *testing.T) {
	cases := map[float64]models.CorrelationQuality{
		0.95: models.QualityExcellent,
		0.9:  models.QualityGood,
		0.75: models.QualityGood,
		0.7:  models.QualityModerate,
		0.55: models.QualityModerate,
		0.5:  models.QualityWeak,
		0.1:  models.QualityWeak,
	}
	for r2, want := range cases {
		assert.Equal(t, want, models.CorrelationModel{RSquared: r2}.Quality(), "r2=%v", r2)
	}
}

func TestPublicCaliberFor(t *testing.T) {
	assert.Equal(t, "16/20", PublicCaliberFor("20", models.PresentationWhole))
	assert.Equal(t, "36/40", PublicCaliberFor("40", models.PresentationWhole))
	assert.Equal(t, "71/90", PublicCaliberFor("80", models.PresentationWhole))
	assert.Equal(t, "20", PublicCaliberFor("20", models.PresentationHeadless))
	assert.Equal(t, "16/20", PublicCaliberFor("16/20", models.PresentationWhole))
	assert.Equal(t, "90", PublicCaliberFor("90", models.PresentationWhole))

	eq := CaliberEquivalences()
	eq[models.PresentationWhole]["20"] = "mutated"
	assert.Equal(t, "16/20", PublicCaliberFor("20", models.PresentationWhole))
}
