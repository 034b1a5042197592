package analytics

import (
	"fmt"
	"math"

	"ShrimpCast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// linearFit is an ordinary least squares fit of y = Intercept + Slope*x.
type linearFit struct {
	Slope       float64
	Intercept   float64
	R           float64
	RSquared    float64
	PValue      float64
	StdErrSlope float64
	Residuals   []float64
}

// fitLine regresses y on x. It needs at least three points and a regressor
// with non-zero variance. A constant y yields r = 0 and p = 1.
func fitLine(x, y []float64) (linearFit, error) {
	n := len(x)
	if n != len(y) {
		return linearFit{}, fmt.Errorf("%w: x and y lengths differ (%d vs %d)", models.ErrInvalidArgument, n, len(y))
	}
	if n < 3 {
		return linearFit{}, &models.InsufficientDataError{What: "points for regression", Have: n, Need: 3}
	}
	_, xVar := stat.PopMeanVariance(x, nil)
	if xVar == 0 || math.IsNaN(xVar) {
		return linearFit{}, fmt.Errorf("%w: regressor has no variance", models.ErrInsufficientData)
	}
	_, yVar := stat.PopMeanVariance(y, nil)

	intercept, slope := stat.LinearRegression(x, y, nil, false)

	r := 0.0
	if yVar > 0 {
		r = clamp(stat.Correlation(x, y, nil), -1, 1)
	}

	residuals := make([]float64, n)
	sse := 0.0
	for i := range x {
		residuals[i] = y[i] - (intercept + slope*x[i])
		sse += residuals[i] * residuals[i]
	}

	df := float64(n - 2)
	sxx := xVar * float64(n)
	stdErr := math.Sqrt(sse/df) / math.Sqrt(sxx)

	return linearFit{
		Slope:       slope,
		Intercept:   intercept,
		R:           r,
		RSquared:    r * r,
		PValue:      pValue(r, yVar, df),
		StdErrSlope: stdErr,
		Residuals:   residuals,
	}, nil
}

// pValue is the two-sided p-value of the slope under a Student t with df degrees.
func pValue(r, yVar, df float64) float64 {
	if yVar == 0 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(df/((1-r)*(1+r)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return clamp(2*dist.Survival(math.Abs(t)), 0, 1)
}

// popStdDev is the population standard deviation (ddof = 0).
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(xs, nil)
	return math.Sqrt(v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
