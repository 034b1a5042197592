package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func newSQLiteStore(t *testing.T) *SQLStore {
	c, err := sqlite.NewClient(sqlite.WithPath(":memory:"))
	require.NoError(t, err)
	s := NewSQLiteStore(c, logger.Nop())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func stores(t *testing.T) map[string]domrepo.Store {
	return map[string]domrepo.Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func model(cal string, at time.Time, slope float64) models.CorrelationModel {
	return models.CorrelationModel{
		ID:            cal + "-" + at.Format(time.RFC3339Nano),
		Caliber:       cal,
		PublicCaliber: cal,
		Presentation:  models.PresentationHeadless,
		Slope:         slope,
		Intercept:     0.5,
		RSquared:      0.9,
		PearsonR:      0.95,
		SampleCount:   12,
		RatioMean:     0.7,
		LookbackDays:  90,
		ComputedOn:    day(30),
		ComputedAt:    at,
	}
}

func TestSeriesCollapsesByWeightThenSource(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := models.PublicKey("16/20")
			require.NoError(t, s.AppendObservations(ctx, key, []models.Observation{
				{Date: day(0), Price: 6.0, Source: "freezeocean", Weight: 0.35},
				{Date: day(0), Price: 6.1, Source: "consolidated", Weight: 1.0},
				{Date: day(1), Price: 6.3, Source: "tridge", Weight: 0.5},
				{Date: day(1), Price: 6.2, Source: "alibaba", Weight: 0.5},
				{Date: day(2), Price: 6.4, Source: "tridge", Weight: 0.5},
			}))

			ts, err := s.Series(ctx, key, day(0), day(2))
			require.NoError(t, err)
			require.Equal(t, 3, ts.Len())
			assert.Equal(t, 6.1, ts.Points[0].Price)
			assert.Equal(t, 6.2, ts.Points[1].Price)
			assert.Equal(t, 6.4, ts.Points[2].Price)
			assert.True(t, ts.Points[0].Date.Equal(day(0)))
			assert.NoError(t, ts.Validate())
		})
	}
}

func TestSeriesPrefersConsolidatedOverFullWeightSource(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := models.PublicKey("26/30")
			require.NoError(t, s.AppendObservations(ctx, key, []models.Observation{
				{Date: day(0), Price: 3.40, Source: "alibaba", Weight: 1.0},
				{Date: day(0), Price: 3.60, Source: "freezeocean", Weight: 0.45},
				{Date: day(0), Price: 3.4621, Source: models.ConsolidatedSource, Weight: 1.0},
				{Date: day(1), Price: 3.50, Source: "alibaba", Weight: 1.0},
				{Date: day(1), Price: 3.55, Source: "freezeocean", Weight: 0.45},
			}))

			ts, err := s.Series(ctx, key, day(0), day(1))
			require.NoError(t, err)
			require.Equal(t, 2, ts.Len())
			assert.Equal(t, 3.4621, ts.Points[0].Price)
			assert.Equal(t, 3.50, ts.Points[1].Price)
		})
	}
}

func TestSeriesRangeIsInclusiveAndUpsertReplaces(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := models.DispatchKey("21/25", models.PresentationHeadless)
			for d := 0; d < 10; d++ {
				require.NoError(t, s.AppendObservations(ctx, key, []models.Observation{
					{Date: day(d), Price: 4 + float64(d)/10, Source: "EXPORQUILSA", Weight: 1},
				}))
			}
			require.NoError(t, s.AppendObservations(ctx, key, []models.Observation{
				{Date: day(3), Price: 9.9, Source: "EXPORQUILSA", Weight: 1},
			}))

			ts, err := s.Series(ctx, key, day(3), day(5))
			require.NoError(t, err)
			require.Equal(t, 3, ts.Len())
			assert.Equal(t, 9.9, ts.Points[0].Price)
			assert.InDelta(t, 4.5, ts.Points[2].Price, 1e-12)

			other, err := s.Series(ctx, models.DispatchKey("21/25", models.PresentationWhole), day(0), day(9))
			require.NoError(t, err)
			assert.Zero(t, other.Len())

			st, err := s.Status(ctx)
			require.NoError(t, err)
			require.Len(t, st.Series, 1)
			assert.Equal(t, 10, st.Series[0].Points)
			assert.Equal(t, 10, st.Observations)
			assert.True(t, st.Series[0].FirstDate.Equal(day(0)))
			assert.True(t, st.Series[0].LastDate.Equal(day(9)))
		})
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.AppendObservations(ctx, models.PublicKey("16/20"), []models.Observation{
				{Date: day(0), Price: -1, Source: "tridge", Weight: 0.5},
			})
			assert.ErrorIs(t, err, models.ErrInvalidArgument)

			for _, price := range []float64{math.NaN(), math.Inf(1)} {
				err = s.AppendObservations(ctx, models.PublicKey("16/20"), []models.Observation{
					{Date: day(0), Price: price, Source: "tridge", Weight: 0.5},
				})
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
			}
			err = s.AppendObservations(ctx, models.PublicKey("16/20"), []models.Observation{
				{Date: day(0), Price: 6, Source: "tridge", Weight: math.NaN()},
			})
			assert.ErrorIs(t, err, models.ErrInvalidArgument)

			ts, err := s.Series(ctx, models.PublicKey("16/20"), day(0), day(0))
			require.NoError(t, err)
			assert.Zero(t, ts.Len())

			err = s.AppendObservations(ctx, models.DispatchKey("16/20", "FROZEN"), nil)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestUpsertCorrelationLastComputedWins(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

			cur, err := s.CurrentCorrelation(ctx, "16/20", models.PresentationHeadless)
			require.NoError(t, err)
			assert.Nil(t, cur)

			applied, err := s.UpsertCorrelation(ctx, model("16/20", t0, 1.1))
			require.NoError(t, err)
			assert.True(t, applied)

			applied, err = s.UpsertCorrelation(ctx, model("16/20", t0.Add(time.Hour), 1.2))
			require.NoError(t, err)
			assert.True(t, applied)

			applied, err = s.UpsertCorrelation(ctx, model("16/20", t0.Add(30*time.Minute), 9.9))
			require.NoError(t, err)
			assert.False(t, applied, "older fit must not replace a newer one")

			cur, err = s.CurrentCorrelation(ctx, "16/20", models.PresentationHeadless)
			require.NoError(t, err)
			require.NotNil(t, cur)
			assert.Equal(t, 1.2, cur.Slope)
			assert.True(t, cur.ComputedAt.Equal(t0.Add(time.Hour)))
			assert.True(t, cur.ComputedOn.Equal(day(30)))
			assert.Equal(t, 12, cur.SampleCount)

			hist, err := s.CorrelationHistory(ctx, "16/20", models.PresentationHeadless, 10)
			require.NoError(t, err)
			require.Len(t, hist, 2)
			assert.Equal(t, 1.2, hist[0].Slope)
			assert.Equal(t, 1.1, hist[1].Slope)
		})
	}
}

func TestUpsertCorrelationIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := model("26/30", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 1.05)
			for i := 0; i < 3; i++ {
				applied, err := s.UpsertCorrelation(ctx, m)
				require.NoError(t, err)
				assert.True(t, applied)
			}
			hist, err := s.CorrelationHistory(ctx, "26/30", models.PresentationHeadless, 0)
			require.NoError(t, err)
			assert.Len(t, hist, 1)

			st, err := s.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, st.Correlations)
		})
	}
}

func TestUpsertCorrelationValidates(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.UpsertCorrelation(context.Background(), models.CorrelationModel{Caliber: "16/20", Presentation: models.PresentationHeadless})
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestConcurrentUpsertsKeepNewest(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			const n = 20

			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				go func(i int) {
					// interleave old and new fits
					at := t0.Add(time.Duration((i*7)%n) * time.Minute)
					_, err := s.UpsertCorrelation(ctx, model("31/35", at, float64((i*7)%n)))
					errs <- err
				}(i)
			}
			for i := 0; i < n; i++ {
				require.NoError(t, <-errs)
			}

			cur, err := s.CurrentCorrelation(ctx, "31/35", models.PresentationHeadless)
			require.NoError(t, err)
			require.NotNil(t, cur)
			assert.Equal(t, float64(n-1), cur.Slope)
		})
	}
}
