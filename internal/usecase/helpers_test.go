package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/internal/repository"
	"ShrimpCast/internal/services/analytics"
	"ShrimpCast/pkg/util"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// daysAgo returns the calendar date n days before now.
func daysAgo(n int) time.Time { return util.AddDays(now, -n) }

type recordingEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEvents) Publish(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) Broadcast(ev models.Event) { _ = r.Publish(context.Background(), ev) }

func (r *recordingEvents) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store  *repository.MemoryStore
	svc    *ForecastService
	ingest *PriceIngestor
	events *recordingEvents
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	events := &recordingEvents{}
	optimizer, err := analytics.NewPurchaseOptimizer(analytics.DefaultMinimumMargin, analytics.DefaultRecommendedMargin)
	require.NoError(t, err)
	consolidator, err := analytics.NewSourceConsolidator()
	require.NoError(t, err)

	base := append([]Option{WithClock(clock), WithEvents(events)}, opts...)
	return &fixture{
		store: store,
		svc: NewForecastService(store,
			analytics.NewTrendForecaster(),
			analytics.NewCorrelationFitter(),
			analytics.NewDispatchComposer(),
			optimizer,
			base...),
		ingest: NewPriceIngestor(store, consolidator, base...),
		events: events,
	}
}

// seedPublic stores n daily public prices ending today: start, start+step, ...
func (f *fixture) seedPublic(t *testing.T, caliber string, n int, start, step float64) {
	t.Helper()
	obs := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		obs = append(obs, models.Observation{
			Date:   daysAgo(n - 1 - i),
			Price:  start + step*float64(i),
			Source: ConsolidatedSource,
			Weight: 1,
		})
	}
	require.NoError(t, f.store.AppendObservations(context.Background(), models.PublicKey(caliber), obs))
}

// seedDispatch stores dispatch = intercept + slope*public for the last n days
// of an already seeded public series.
func (f *fixture) seedDispatch(t *testing.T, caliber string, p models.Presentation, n int, intercept, slope float64) {
	t.Helper()
	ctx := context.Background()
	pub, err := f.store.Series(ctx, models.PublicKey(analytics.PublicCaliberFor(caliber, p)), daysAgo(n-1), daysAgo(0))
	require.NoError(t, err)
	obs := make([]models.Observation, 0, pub.Len())
	for _, pt := range pub.Points {
		obs = append(obs, models.Observation{Date: pt.Date, Price: intercept + slope*pt.Price, Source: DefaultDispatchOrigin, Weight: 1})
	}
	require.NoError(t, f.store.AppendObservations(ctx, models.DispatchKey(caliber, p), obs))
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
