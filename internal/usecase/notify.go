package usecase

import (
	"context"
	"errors"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/pkg/cache"
	"ShrimpCast/pkg/logger"
)

const forecastCachePrefix = "forecast"

// notify publishes ev and pushes it to live subscribers. Publishing is best
// effort; the write it describes has already been committed.
func (d *deps) notify(ctx context.Context, ev models.Event) {
	if ev.At.IsZero() {
		ev.At = d.clock().UTC()
	}
	if d.events != nil {
		if err := d.events.Publish(ctx, ev); err != nil {
			d.metrics.RecordError("event_publish")
			d.logger.Warn("event publish failed",
				logger.String("type", string(ev.Type)),
				logger.String("key", ev.Key),
				logger.Error(err))
		}
	}
	if d.broadcaster != nil {
		d.broadcaster.Broadcast(ev)
	}
}

func (d *deps) invalidateForecasts(ctx context.Context) {
	if d.cache == nil {
		return
	}
	if err := d.cache.DeleteByPattern(ctx, cache.BuildPattern(forecastCachePrefix)); err != nil {
		d.logger.Warn("forecast cache invalidation failed", logger.Error(err))
	}
}

func (d *deps) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if d.cache == nil {
		return false
	}
	err := d.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		d.logger.Warn("cache get failed", logger.String("key", key), logger.Error(err))
	}
	return err == nil
}

func (d *deps) cachePut(ctx context.Context, key string, v interface{}) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, key, v, d.cacheTTL); err != nil {
		d.logger.Warn("cache set failed", logger.String("key", key), logger.Error(err))
	}
}
