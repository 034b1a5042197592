package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	domsvc "ShrimpCast/internal/domain/service"
	pkgkafka "ShrimpCast/pkg/kafka"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/util"
)

const (
	ConsolidatedSource = models.ConsolidatedSource

	DefaultDispatchOrigin = "EXPORQUILSA"
)

// WeightedConsolidator is a Consolidator that also exposes source weights.
type WeightedConsolidator interface {
	domsvc.Consolidator
	Weight(source string) (float64, bool)
}

// PriceIngestor writes consolidated public prices and dispatch prices.
type PriceIngestor struct {
	deps
	store        domrepo.SeriesStore
	consolidator WeightedConsolidator
}

func NewPriceIngestor(store domrepo.SeriesStore, consolidator WeightedConsolidator, opts ...Option) *PriceIngestor {
	d := applyOptions(opts)
	d.logger = d.logger.Named("ingest")
	return &PriceIngestor{deps: d, store: store, consolidator: consolidator}
}

// ConsolidateDay fuses the quotes of one day, stores the raw quotes and one
// consolidated observation per caliber. NO_DATA stores nothing and returns
// an error wrapping models.ErrNoData.
func (i *PriceIngestor) ConsolidateDay(ctx context.Context, date time.Time, quotes models.SourceQuotes) (models.Consolidation, error) {
	date = util.Day(date)
	out := models.Consolidation{Date: date, Status: models.ConsolidationNoData}

	prices, err := i.consolidator.Consolidate(date, quotes)
	if err != nil {
		i.metrics.RecordError(ErrorKind(err))
		return out, err
	}

	byCaliber := make(map[string][]models.Observation, len(prices))
	for src, perCal := range quotes.PerCaliber {
		w, ok := i.consolidator.Weight(src)
		if !ok {
			continue
		}
		for cal, q := range perCal {
			if _, fused := prices[cal]; !fused || !(q.Price > 0) || math.IsInf(q.Price, 1) {
				continue
			}
			byCaliber[cal] = append(byCaliber[cal], models.Observation{Date: date, Price: q.Price, Source: src, Weight: w})
		}
	}
	derived := false
	for cal, cp := range prices {
		byCaliber[cal] = append(byCaliber[cal], models.Observation{Date: date, Price: cp.Price, Source: ConsolidatedSource, Weight: 1.0})
		derived = derived || cp.Derived
	}

	calibers := make([]string, 0, len(byCaliber))
	for cal := range byCaliber {
		calibers = append(calibers, cal)
	}
	sort.Strings(calibers)
	for _, cal := range calibers {
		if err := i.store.AppendObservations(ctx, models.PublicKey(cal), byCaliber[cal]); err != nil {
			return out, fmt.Errorf("store %s: %w", cal, err)
		}
		i.metrics.RecordLastPrice(cal, "public", prices[cal].Price)
	}

	out.Prices = prices
	out.Status = models.ConsolidationOK
	if derived {
		out.Status = models.ConsolidationDerived
	}
	i.logger.Info("day consolidated",
		logger.Date("date", date),
		logger.String("status", out.Status),
		logger.Int("calibers", len(prices)))

	i.invalidateForecasts(ctx)
	i.notify(ctx, models.Event{Type: models.EventPriceConsolidated, Key: util.FormatDate(date), Payload: out})
	return out, nil
}

// RecordDispatch stores one dispatch price. The origin defaults to
// DefaultDispatchOrigin.
func (i *PriceIngestor) RecordDispatch(ctx context.Context, rec models.DispatchRecord) (models.DispatchRecord, error) {
	rec.Caliber = strings.TrimSpace(rec.Caliber)
	rec.Date = util.Day(rec.Date)
	if rec.Origin == "" {
		rec.Origin = DefaultDispatchOrigin
	}
	if rec.Caliber == "" {
		return rec, fmt.Errorf("%w: caliber is required", models.ErrInvalidArgument)
	}
	if !domrepo.IsValidPresentation(rec.Presentation) {
		return rec, fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, rec.Presentation)
	}

	key := models.DispatchKey(rec.Caliber, rec.Presentation)
	err := i.store.AppendObservations(ctx, key, []models.Observation{
		{Date: rec.Date, Price: rec.Price, Source: rec.Origin, Weight: 1.0},
	})
	if err != nil {
		if !errors.Is(err, models.ErrInvalidArgument) {
			i.metrics.RecordError("store")
		}
		return rec, err
	}

	i.metrics.RecordLastPrice(rec.Caliber, "dispatch_"+strings.ToLower(string(rec.Presentation)), rec.Price)
	i.invalidateForecasts(ctx)
	i.notify(ctx, models.Event{Type: models.EventDispatchRecorded, Key: string(pkgkafka.SeriesKey(rec.Caliber, string(rec.Presentation))), Payload: rec})
	return rec, nil
}
