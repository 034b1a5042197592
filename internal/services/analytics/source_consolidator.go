package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ShrimpCast/internal/domain/models"
	domsvc "ShrimpCast/internal/domain/service"
	"ShrimpCast/pkg/util"

	"github.com/shopspring/decimal"
)

// DefaultSourceWeights are the reliability weights of the known price sources.
var DefaultSourceWeights = map[string]float64{
	"alibaba":           0.40,
	"trading_economics": 0.35,
	"fao":               0.25,
	"comtrade":          0.30,
	"selina_wamucii":    0.25,
	"freezeocean":       0.45,
	"globalfrozen":      0.45,
	"easyseafood":       0.35,
}

// DefaultUnitValuePriority orders the sources whose market-wide unit value
// may stand in for every caliber.
var DefaultUnitValuePriority = []string{"comtrade", "selina_wamucii"}

// DefaultCalibers are the public calibers a unit value is spread over.
var DefaultCalibers = []string{"16/20", "21/25", "26/30", "31/35", "36/40", "41/50", "51/60", "61/70", "71/90", "91/110"}

// ConsolidatorOption configures SourceConsolidator.
type ConsolidatorOption func(*ConsolidatorConfig)

// ConsolidatorConfig holds source weights and the caliber universe.
type ConsolidatorConfig struct {
	Weights           map[string]float64
	UnitValuePriority []string
	Calibers          []string
}

// WithSourceWeights replaces the source weight table.
func WithSourceWeights(w map[string]float64) ConsolidatorOption {
	return func(c *ConsolidatorConfig) {
		if len(w) > 0 {
			c.Weights = w
		}
	}
}

// WithUnitValuePriority sets the preferred order of unit-value sources.
func WithUnitValuePriority(sources []string) ConsolidatorOption {
	return func(c *ConsolidatorConfig) {
		if len(sources) > 0 {
			c.UnitValuePriority = sources
		}
	}
}

// WithCalibers sets the known calibers.
func WithCalibers(calibers []string) ConsolidatorOption {
	return func(c *ConsolidatorConfig) {
		if len(calibers) > 0 {
			c.Calibers = calibers
		}
	}
}

// SourceConsolidator computes a weighted daily price per caliber.
type SourceConsolidator struct {
	weights  map[string]float64
	priority []string
	calibers []string
}

// NewSourceConsolidator validates that every weight lies in (0,1].
func NewSourceConsolidator(opts ...ConsolidatorOption) (*SourceConsolidator, error) {
	cfg := ConsolidatorConfig{
		Weights:           DefaultSourceWeights,
		UnitValuePriority: DefaultUnitValuePriority,
		Calibers:          DefaultCalibers,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	weights := make(map[string]float64, len(cfg.Weights))
	for src, w := range cfg.Weights {
		if !(w > 0 && w <= 1) {
			return nil, fmt.Errorf("%w: weight of source %q must be in (0,1], got %v", models.ErrConfiguration, src, w)
		}
		weights[src] = w
	}
	// Priority sources without a weight can never report, so they are dropped.
	priority := make([]string, 0, len(cfg.UnitValuePriority))
	for _, src := range cfg.UnitValuePriority {
		if _, ok := weights[src]; ok {
			priority = append(priority, src)
		}
	}
	return &SourceConsolidator{
		weights:  weights,
		priority: priority,
		calibers: append([]string(nil), cfg.Calibers...),
	}, nil
}

// Weights returns a copy of the source weight table.
func (c *SourceConsolidator) Weights() map[string]float64 {
	out := make(map[string]float64, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}

// Weight returns the configured weight of source.
func (c *SourceConsolidator) Weight(source string) (float64, bool) {
	w, ok := c.weights[source]
	return w, ok
}

// Calibers returns the known calibers.
func (c *SourceConsolidator) Calibers() []string {
	return append([]string(nil), c.calibers...)
}

type weightedSum struct {
	num     decimal.Decimal
	den     decimal.Decimal
	sources int
}

// Consolidate fuses one day of quotes. Per-caliber prices win; when there are
// none, a unit value is spread over every known caliber and marked derived.
// With nothing usable it fails with ErrNoData.
func (c *SourceConsolidator) Consolidate(date time.Time, quotes models.SourceQuotes) (map[string]models.ConsolidatedPrice, error) {
	for src := range quotes.PerCaliber {
		if _, ok := c.weights[src]; !ok {
			return nil, fmt.Errorf("%w: unknown source %q", models.ErrConfiguration, src)
		}
	}
	for src := range quotes.UnitValues {
		if _, ok := c.weights[src]; !ok {
			return nil, fmt.Errorf("%w: unknown source %q", models.ErrConfiguration, src)
		}
	}

	day := util.Day(date)
	sums := make(map[string]*weightedSum)
	for src, byCaliber := range quotes.PerCaliber {
		w := decimal.NewFromFloat(c.weights[src])
		for caliber, q := range byCaliber {
			if !usable(q.Price) {
				continue
			}
			s, ok := sums[caliber]
			if !ok {
				s = &weightedSum{}
				sums[caliber] = s
			}
			s.num = s.num.Add(decimal.NewFromFloat(q.Price).Mul(w))
			s.den = s.den.Add(w)
			s.sources++
		}
	}

	if len(sums) > 0 {
		out := make(map[string]models.ConsolidatedPrice, len(sums))
		for caliber, s := range sums {
			out[caliber] = models.ConsolidatedPrice{
				Caliber:             caliber,
				Date:                day,
				Price:               s.num.Div(s.den).Round(pricePlaces).InexactFloat64(),
				ContributingSources: s.sources,
			}
		}
		return out, nil
	}

	src, value, ok := c.pickUnitValue(quotes.UnitValues)
	if !ok {
		return nil, fmt.Errorf("consolidate %s: %w", util.FormatDate(day), models.ErrNoData)
	}
	price := decimal.NewFromFloat(value).Round(pricePlaces).InexactFloat64()
	out := make(map[string]models.ConsolidatedPrice, len(c.calibers))
	for _, caliber := range c.calibers {
		out[caliber] = models.ConsolidatedPrice{
			Caliber:             caliber,
			Date:                day,
			Price:               price,
			ContributingSources: 1,
			Derived:             true,
			DerivedFrom:         src,
		}
	}
	return out, nil
}

// pickUnitValue prefers the configured priority order, then the heaviest
// remaining source, breaking ties by name.
func (c *SourceConsolidator) pickUnitValue(values map[string]float64) (string, float64, bool) {
	for _, src := range c.priority {
		if v, ok := values[src]; ok && usable(v) {
			return src, v, true
		}
	}
	candidates := make([]string, 0, len(values))
	for src, v := range values {
		if usable(v) {
			candidates = append(candidates, src)
		}
	}
	if len(candidates) == 0 {
		return "", 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		wi, wj := c.weights[candidates[i]], c.weights[candidates[j]]
		if wi != wj {
			return wi > wj
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], values[candidates[0]], true
}

func usable(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

var _ domsvc.Consolidator = (*SourceConsolidator)(nil)
