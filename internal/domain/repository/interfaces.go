package repository

import (
	"context"
	"time"

	"ShrimpCast/internal/domain/models"
)

// SeriesStore persists observations and serves them back as time series.
type SeriesStore interface {
	// AppendObservations upserts by (key, source, date).
	AppendObservations(ctx context.Context, key models.SeriesKey, obs []models.Observation) error
	// Series returns one price per date within [from, to], ordered by date.
	// When several sources cover a date the highest weight wins.
	Series(ctx context.Context, key models.SeriesKey, from, to time.Time) (models.TimeSeries, error)
	Status(ctx context.Context) (models.StoreStatus, error)
}

// CorrelationStore keeps one current model per (caliber, presentation) plus
// the history of every accepted fit.
type CorrelationStore interface {
	// UpsertCorrelation replaces the current model unless the stored one was
	// computed later. It reports whether the model was applied.
	UpsertCorrelation(ctx context.Context, m models.CorrelationModel) (bool, error)
	// CurrentCorrelation returns nil without error when no model exists.
	CurrentCorrelation(ctx context.Context, caliber string, p models.Presentation) (*models.CorrelationModel, error)
	CorrelationHistory(ctx context.Context, caliber string, p models.Presentation, limit int) ([]models.CorrelationModel, error)
}

type Store interface {
	SeriesStore
	CorrelationStore
	Health(ctx context.Context) error
	Close() error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// Broadcaster pushes events to live subscribers without blocking.
type Broadcaster interface {
	Broadcast(ev models.Event)
}

type Metrics interface {
	RecordForecast(kind, method string)
	RecordError(kind string)
	RecordLastPrice(caliber, series string, price float64)
	RecordLatency(op string, seconds float64)
}
