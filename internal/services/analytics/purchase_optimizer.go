package analytics

import (
	"fmt"
	"math"

	"ShrimpCast/internal/domain/models"
	domsvc "ShrimpCast/internal/domain/service"

	"github.com/shopspring/decimal"
)

const (
	DefaultMinimumMargin     = 0.10
	DefaultRecommendedMargin = 0.15

	// quote prices are reported to the tenth of a cent
	pricePlaces = 3
)

// PurchaseOptimizer turns a dispatch estimate into a buy-price band.
type PurchaseOptimizer struct {
	minimum     decimal.Decimal
	recommended decimal.Decimal
}

// NewPurchaseOptimizer requires 0 < minimumMargin <= recommendedMargin.
func NewPurchaseOptimizer(minimumMargin, recommendedMargin float64) (*PurchaseOptimizer, error) {
	if !(minimumMargin > 0) || !(recommendedMargin > 0) {
		return nil, fmt.Errorf("%w: margins must be positive (minimum=%v recommended=%v)", models.ErrInvalidArgument, minimumMargin, recommendedMargin)
	}
	if recommendedMargin < minimumMargin {
		return nil, fmt.Errorf("%w: recommended margin %v is below minimum margin %v", models.ErrInvalidArgument, recommendedMargin, minimumMargin)
	}
	return &PurchaseOptimizer{
		minimum:     decimal.NewFromFloat(minimumMargin),
		recommended: decimal.NewFromFloat(recommendedMargin),
	}, nil
}

// HorizonRiskFactor loads margins for longer horizons: <=30 days 1.0,
// <=60 days 1.1, beyond that 1.25.
func HorizonRiskFactor(daysAhead int) float64 {
	switch {
	case daysAhead <= 30:
		return 1.0
	case daysAhead <= 60:
		return 1.1
	default:
		return 1.25
	}
}

// QuotePurchase returns the band for dispatchEstimate. When the recommended
// price is not positive the quote is still returned, marked NOT_VIABLE with
// non-positive prices omitted, along with an error wrapping ErrNotViable.
func (o *PurchaseOptimizer) QuotePurchase(dispatchEstimate float64, daysAhead int) (models.PurchaseQuote, error) {
	if daysAhead < 0 {
		return models.PurchaseQuote{}, fmt.Errorf("%w: days ahead must be >= 0, got %d", models.ErrInvalidArgument, daysAhead)
	}
	if math.IsNaN(dispatchEstimate) || math.IsInf(dispatchEstimate, 0) {
		return models.PurchaseQuote{}, fmt.Errorf("%w: dispatch estimate is not finite", models.ErrInvalidArgument)
	}

	factor := HorizonRiskFactor(daysAhead)
	f := decimal.NewFromFloat(factor)
	est := decimal.NewFromFloat(dispatchEstimate)
	minAdj := o.minimum.Mul(f)
	recAdj := o.recommended.Mul(f)
	minBuy := est.Sub(minAdj).Round(pricePlaces)
	recBuy := est.Sub(recAdj).Round(pricePlaces)

	q := models.PurchaseQuote{
		DispatchEstimate:    est.Round(pricePlaces).InexactFloat64(),
		MinimumBuyPrice:     minBuy.InexactFloat64(),
		RecommendedBuyPrice: recBuy.InexactFloat64(),
		MarginMinimum:       minAdj.InexactFloat64(),
		MarginRecommended:   recAdj.InexactFloat64(),
		HorizonDays:         daysAhead,
		HorizonRiskFactor:   factor,
		Viable:              true,
		Status:              models.QuoteStatusViable,
	}
	if !recBuy.IsPositive() {
		q.Viable = false
		q.Status = models.QuoteStatusNotViable
		q.RecommendedBuyPrice = 0
		if !minBuy.IsPositive() {
			q.MinimumBuyPrice = 0
		}
		return q, fmt.Errorf("%w: recommended buy price %s for estimate %s", models.ErrNotViable, recBuy.String(), est.String())
	}
	return q, nil
}

// QuotePurchase is the one-shot form of PurchaseOptimizer.QuotePurchase.
func QuotePurchase(dispatchEstimate float64, daysAhead int, minimumMargin, recommendedMargin float64) (models.PurchaseQuote, error) {
	o, err := NewPurchaseOptimizer(minimumMargin, recommendedMargin)
	if err != nil {
		return models.PurchaseQuote{}, err
	}
	return o.QuotePurchase(dispatchEstimate, daysAhead)
}

var _ domsvc.PurchaseOptimizer = (*PurchaseOptimizer)(nil)
