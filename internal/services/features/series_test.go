package features

import (
	"testing"
	"time"

	"ShrimpCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func series(key models.SeriesKey, days []int, prices []float64) models.TimeSeries {
	ts := models.TimeSeries{Key: key}
	for i := range days {
		ts.Points = append(ts.Points, models.Point{Date: day(days[i]), Price: prices[i]})
	}
	return ts
}

func TestEMASeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 0.3)
	require.Len(t, got, 3)
	assert.InDelta(t, 10.0, got[0], 1e-12)
	assert.InDelta(t, 13.0, got[1], 1e-12)
	assert.InDelta(t, 18.1, got[2], 1e-12)
	assert.Nil(t, EMA(nil, 0.3))
}

func TestDayOffsets(t *testing.T) {
	ts := series(models.PublicKey("16/20"), []int{3, 4, 10}, []float64{1, 2, 3})
	assert.Equal(t, []float64{0, 1, 7}, DayOffsets(ts.Points))
}

func TestInnerJoinKeepsCommonDatesOnly(t *testing.T) {
	pub := series(models.PublicKey("16/20"), []int{0, 1, 2, 3, 5}, []float64{5, 5.1, 5.2, 5.3, 5.5})
	dis := series(models.DispatchKey("16/20", models.PresentationHeadless), []int{1, 3, 4, 5}, []float64{4, 4.2, 4.3, 4.4})

	a := InnerJoin(pub, dis)
	require.Equal(t, 3, a.Len())
	assert.Equal(t, []float64{5.1, 5.3, 5.5}, a.Left)
	assert.Equal(t, []float64{4, 4.2, 4.4}, a.Right)
	assert.Equal(t, day(1), a.Dates[0])
}

func TestWindowUsesToday(t *testing.T) {
	ts := series(models.PublicKey("16/20"), []int{0, 10, 20, 30}, []float64{1, 2, 3, 4})
	w := Window(ts, 15, day(30))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, day(20), w.Points[0].Date)
}

func TestRatiosSkipsNonPositiveDenominator(t *testing.T) {
	assert.Equal(t, []float64{0.5, 2}, Ratios([]float64{1, 3, 4}, []float64{2, 0, 2}))
}
