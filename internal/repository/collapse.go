package repository

import (
	"fmt"
	"sort"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/pkg/util"
)

// collapseByDate keeps one observation per calendar date. The consolidated
// observation always wins; otherwise the highest weight wins and equal
// weights fall back to the smallest source name.
func collapseByDate(key models.SeriesKey, obs []models.Observation) models.TimeSeries {
	best := make(map[time.Time]models.Observation, len(obs))
	for _, o := range obs {
		d := util.Day(o.Date)
		cur, ok := best[d]
		if !ok || outranks(o, cur) {
			o.Date = d
			best[d] = o
		}
	}

	ts := models.TimeSeries{Key: key, Points: make([]models.Point, 0, len(best))}
	for d, o := range best {
		ts.Points = append(ts.Points, models.Point{Date: d, Price: o.Price})
	}
	sort.Slice(ts.Points, func(i, j int) bool { return ts.Points[i].Date.Before(ts.Points[j].Date) })
	return ts
}

func outranks(o, cur models.Observation) bool {
	oc, cc := o.Source == models.ConsolidatedSource, cur.Source == models.ConsolidatedSource
	if oc != cc {
		return oc
	}
	if o.Weight != cur.Weight {
		return o.Weight > cur.Weight
	}
	return o.Source < cur.Source
}

func validateKey(key models.SeriesKey) error {
	if key.Caliber == "" {
		return fmt.Errorf("%w: caliber is required", models.ErrInvalidArgument)
	}
	switch key.Kind {
	case models.SeriesPublic:
		if key.Presentation != "" {
			return fmt.Errorf("%w: public series carry no presentation", models.ErrInvalidArgument)
		}
	case models.SeriesDispatch:
		if !domrepo.IsValidPresentation(key.Presentation) {
			return fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, key.Presentation)
		}
	default:
		return fmt.Errorf("%w: unknown series kind %q", models.ErrInvalidArgument, key.Kind)
	}
	return nil
}

func validateCorrelation(m models.CorrelationModel) error {
	if m.Caliber == "" {
		return fmt.Errorf("%w: caliber is required", models.ErrInvalidArgument)
	}
	if !domrepo.IsValidPresentation(m.Presentation) {
		return fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, m.Presentation)
	}
	if m.ComputedAt.IsZero() {
		return fmt.Errorf("%w: computed_at is required", models.ErrInvalidArgument)
	}
	return nil
}
