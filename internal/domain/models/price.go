package models

import (
	"fmt"
	"math"
	"time"
)

// SeriesKind tells public retail prices apart from processor dispatch prices.
type SeriesKind string

const (
	SeriesPublic   SeriesKind = "PUBLIC"
	SeriesDispatch SeriesKind = "DISPATCH"
)

// Presentation is the physical form of the product.
type Presentation string

const (
	PresentationHeadless Presentation = "HEADLESS"
	PresentationWhole    Presentation = "WHOLE"
	PresentationLive     Presentation = "LIVE"
)

// SeriesKey identifies one time series. Presentation is empty for public series.
type SeriesKey struct {
	Caliber      string       `json:"caliber"`
	Kind         SeriesKind   `json:"kind"`
	Presentation Presentation `json:"presentation,omitempty"`
}

func PublicKey(caliber string) SeriesKey {
	return SeriesKey{Caliber: caliber, Kind: SeriesPublic}
}

func DispatchKey(caliber string, p Presentation) SeriesKey {
	return SeriesKey{Caliber: caliber, Kind: SeriesDispatch, Presentation: p}
}

func (k SeriesKey) String() string {
	if k.Kind == SeriesDispatch {
		return fmt.Sprintf("%s:%s:%s", k.Kind, k.Caliber, k.Presentation)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.Caliber)
}

// ConsolidatedSource names the fused public price of a day. It outranks
// every raw source on the same date regardless of weight.
const ConsolidatedSource = "consolidated"

// Observation is a single dated price reported by one source.
type Observation struct {
	Date   time.Time `json:"date"`
	Price  float64   `json:"price"`
	Source string    `json:"source"`
	Weight float64   `json:"weight"`
}

// Validate enforces a finite price > 0 and weight in (0,1].
func (o Observation) Validate() error {
	if !(o.Price > 0) || math.IsInf(o.Price, 1) {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidArgument, o.Price)
	}
	if !(o.Weight > 0) || o.Weight > 1 {
		return fmt.Errorf("%w: weight must be in (0,1], got %v", ErrInvalidArgument, o.Weight)
	}
	if o.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidArgument)
	}
	if o.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidArgument)
	}
	return nil
}

// Point is one (date, price) sample of a TimeSeries.
type Point struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// TimeSeries holds the points of one series ordered by date.
type TimeSeries struct {
	Key    SeriesKey `json:"key"`
	Points []Point   `json:"points"`
}

func (ts TimeSeries) Len() int { return len(ts.Points) }

// Validate checks that dates never go backwards.
func (ts TimeSeries) Validate() error {
	for i := 1; i < len(ts.Points); i++ {
		if ts.Points[i].Date.Before(ts.Points[i-1].Date) {
			return fmt.Errorf("%w: series %s is not ordered at index %d", ErrInvalidArgument, ts.Key, i)
		}
	}
	return nil
}

// Since returns the points dated on or after from.
func (ts TimeSeries) Since(from time.Time) TimeSeries {
	out := TimeSeries{Key: ts.Key}
	for _, p := range ts.Points {
		if !p.Date.Before(from) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// Last returns the most recent point.
func (ts TimeSeries) Last() (Point, bool) {
	if len(ts.Points) == 0 {
		return Point{}, false
	}
	return ts.Points[len(ts.Points)-1], true
}

// SourceQuote is what one source reported for one caliber on one day.
type SourceQuote struct {
	Price   float64 `json:"price"`
	Samples int     `json:"samples"`
}

// SourceQuotes is the raw input of a daily consolidation.
// PerCaliber maps source -> caliber -> quote. UnitValues holds market-wide
// values from sources that publish no caliber breakdown.
type SourceQuotes struct {
	PerCaliber map[string]map[string]SourceQuote `json:"per_caliber"`
	UnitValues map[string]float64                `json:"unit_values,omitempty"`
}

// ConsolidatedPrice is the fused public price of one caliber for one day.
type ConsolidatedPrice struct {
	Caliber             string    `json:"caliber"`
	Date                time.Time `json:"date"`
	Price               float64   `json:"price"`
	ContributingSources int       `json:"contributing_sources"`
	Derived             bool      `json:"derived"`
	DerivedFrom         string    `json:"derived_from,omitempty"`
}

// SeriesStat summarises one stored series.
type SeriesStat struct {
	Key       SeriesKey `json:"key"`
	Points    int       `json:"points"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}

// StoreStatus describes what the store currently holds.
type StoreStatus struct {
	Backend      string       `json:"backend"`
	Series       []SeriesStat `json:"series"`
	Observations int          `json:"observations"`
	Correlations int          `json:"correlations"`
	// Jobs is the recompute queue depth by state, when a queue is attached.
	Jobs map[string]int64 `json:"jobs,omitempty"`
}
