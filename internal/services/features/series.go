package features

import (
	"time"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/pkg/util"
)

// DayOffsets returns each point's whole-day distance from the first point.
func DayOffsets(points []models.Point) []float64 {
	if len(points) == 0 {
		return nil
	}
	origin := points[0].Date
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = float64(util.DaysBetween(origin, p.Date))
	}
	return out
}

// Prices extracts the price column.
func Prices(points []models.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// EMA computes an exponential moving average seeded with the first value:
// ema[0] = x[0], ema[i] = alpha*x[i] + (1-alpha)*ema[i-1].
func EMA(xs []float64, alpha float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// Window keeps the points dated on or after today minus lookbackDays.
func Window(ts models.TimeSeries, lookbackDays int, today time.Time) models.TimeSeries {
	return ts.Since(util.AddDays(today, -lookbackDays))
}

// Aligned holds two series joined on their common dates.
type Aligned struct {
	Dates []time.Time
	Left  []float64
	Right []float64
}

func (a Aligned) Len() int { return len(a.Dates) }

// InnerJoin pairs the prices of left and right on identical calendar dates.
// Both inputs must be ordered by date; duplicates on one side keep the last value.
func InnerJoin(left, right models.TimeSeries) Aligned {
	byDate := make(map[time.Time]float64, len(right.Points))
	for _, p := range right.Points {
		byDate[util.Day(p.Date)] = p.Price
	}
	var out Aligned
	seen := make(map[time.Time]int, len(left.Points))
	for _, p := range left.Points {
		d := util.Day(p.Date)
		r, ok := byDate[d]
		if !ok {
			continue
		}
		if idx, dup := seen[d]; dup {
			out.Left[idx] = p.Price
			continue
		}
		seen[d] = len(out.Dates)
		out.Dates = append(out.Dates, d)
		out.Left = append(out.Left, p.Price)
		out.Right = append(out.Right, r)
	}
	return out
}

// Ratios returns num[i]/den[i]. Pairs with a non-positive denominator are skipped.
func Ratios(num, den []float64) []float64 {
	out := make([]float64, 0, len(num))
	for i := range num {
		if i >= len(den) || den[i] <= 0 {
			continue
		}
		out = append(out, num[i]/den[i])
	}
	return out
}
