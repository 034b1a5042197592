package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/pkg/cache"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/queue"
)

const RecomputeJobType = "correlation.recompute"

// RecomputePayload asks for one correlation refit.
type RecomputePayload struct {
	Caliber      string              `json:"caliber"`
	Presentation models.Presentation `json:"presentation"`
	LookbackDays int                 `json:"lookback_days"`
}

// QueueKey coalesces refits of one series while an earlier one is pending.
func (p RecomputePayload) QueueKey() string {
	return cache.GenerateKeyWithParams(p.Caliber, p.Presentation)
}

// CorrelationRecomputeJob refits correlations off the request path. A cache
// lock keeps two workers from fitting the same key at once.
type CorrelationRecomputeJob struct {
	svc     *ForecastService
	lock    cache.Service
	lockTTL time.Duration
}

func NewCorrelationRecomputeJob(svc *ForecastService, lock cache.Service) *CorrelationRecomputeJob {
	return &CorrelationRecomputeJob{svc: svc, lock: lock, lockTTL: time.Minute}
}

func (j *CorrelationRecomputeJob) Name() string { return "correlation-recompute" }

func (j *CorrelationRecomputeJob) Type() string { return RecomputeJobType }

func (j *CorrelationRecomputeJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[RecomputePayload](payload)
	if err != nil {
		return err
	}
	l := j.svc.logger.With(
		logger.String("caliber", p.Caliber),
		logger.String("presentation", string(p.Presentation)))

	if j.lock != nil {
		key := cache.GenerateKeyWithParams("lock:recompute", p.Caliber, p.Presentation)
		ok, err := j.lock.TryLock(ctx, key, j.lockTTL)
		if err != nil {
			return fmt.Errorf("recompute lock: %w", err)
		}
		if !ok {
			l.Debug("recompute already running")
			return nil
		}
		defer func() {
			if err := j.lock.Unlock(context.Background(), key); err != nil {
				l.Warn("recompute unlock failed", logger.Error(err))
			}
		}()
	}

	m, applied, err := j.svc.FitCorrelation(ctx, p.Caliber, p.Presentation, p.LookbackDays)
	if errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrInvalidArgument) {
		l.Info("recompute skipped", logger.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	l.Info("recompute done",
		logger.Bool("applied", applied),
		logger.Float64("r_squared", m.RSquared))
	return nil
}

// EnqueueRecompute schedules one job per key. Keys whose refit is already
// pending are counted as coalesced rather than queued twice.
func EnqueueRecompute(ctx context.Context, pub queue.Publisher, keys []models.CorrelationKey, lookbackDays int) (queued, coalesced int, err error) {
	for _, k := range keys {
		err := pub.Enqueue(ctx, RecomputeJobType, RecomputePayload{
			Caliber:      k.Caliber,
			Presentation: models.Presentation(k.Presentation),
			LookbackDays: lookbackDays,
		})
		switch {
		case errors.Is(err, queue.ErrCoalesced):
			coalesced++
		case err != nil:
			return queued, coalesced, fmt.Errorf("enqueue %s/%s: %w", k.Caliber, k.Presentation, err)
		default:
			queued++
		}
	}
	return queued, coalesced, nil
}

var (
	_ queue.Job   = (*CorrelationRecomputeJob)(nil)
	_ queue.Keyed = RecomputePayload{}
)
