package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/pkg/cache"
	"ShrimpCast/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	payloads []RecomputePayload
	pending  map[string]bool
	failAt   int
}

func (p *fakePublisher) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if msgType != RecomputeJobType {
		return errors.New("unexpected type " + msgType)
	}
	if p.failAt > 0 && len(p.payloads)+1 == p.failAt {
		return errors.New("queue full")
	}
	rp := payload.(RecomputePayload)
	if p.pending == nil {
		p.pending = make(map[string]bool)
	}
	if p.pending[rp.QueueKey()] {
		return queue.ErrCoalesced
	}
	p.pending[rp.QueueKey()] = true
	p.payloads = append(p.payloads, rp)
	return nil
}

func recomputePayload(t *testing.T, cal string, p models.Presentation) json.RawMessage {
	return mustJSON(t, RecomputePayload{Caliber: cal, Presentation: p, LookbackDays: 90})
}

func TestRecomputeJobFitsCorrelation(t *testing.T) {
	f := newFixture(t)
	f.seedPublic(t, "16/20", 30, 6.0, 0.01)
	f.seedDispatch(t, "16/20", models.PresentationHeadless, 15, 0.5, 0.6)
	c := cache.NewMemoryCache()
	defer c.Close()
	job := NewCorrelationRecomputeJob(f.svc, c)
	ctx := context.Background()

	assert.Equal(t, RecomputeJobType, job.Type())
	require.NoError(t, job.Handle(ctx, recomputePayload(t, "16/20", models.PresentationHeadless)))

	cur, err := f.store.CurrentCorrelation(ctx, "16/20", models.PresentationHeadless)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 15, cur.SampleCount)

	ok, err := c.Exists(ctx, cache.GenerateKeyWithParams("lock:recompute", "16/20", models.PresentationHeadless))
	require.NoError(t, err)
	assert.False(t, ok, "lock released")
}

func TestRecomputeJobSkipsWithoutHistory(t *testing.T) {
	f := newFixture(t)
	f.seedPublic(t, "16/20", 30, 6.0, 0.01)
	job := NewCorrelationRecomputeJob(f.svc, nil)

	assert.NoError(t, job.Handle(context.Background(), recomputePayload(t, "16/20", models.PresentationHeadless)))
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`"nope"`)))
}

func TestRecomputeJobSkipsWhenLocked(t *testing.T) {
	f := newFixture(t)
	f.seedPublic(t, "16/20", 30, 6.0, 0.01)
	f.seedDispatch(t, "16/20", models.PresentationHeadless, 15, 0.5, 0.6)
	c := cache.NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	key := cache.GenerateKeyWithParams("lock:recompute", "16/20", models.PresentationHeadless)
	ok, err := c.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	job := NewCorrelationRecomputeJob(f.svc, c)
	require.NoError(t, job.Handle(ctx, recomputePayload(t, "16/20", models.PresentationHeadless)))

	cur, err := f.store.CurrentCorrelation(ctx, "16/20", models.PresentationHeadless)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestEnqueueRecompute(t *testing.T) {
	keys := []models.CorrelationKey{
		{Caliber: "16/20", Presentation: "HEADLESS"},
		{Caliber: "21/25", Presentation: "LIVE"},
	}

	pub := &fakePublisher{}
	n, dup, err := EnqueueRecompute(context.Background(), pub, keys, 60)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, dup)
	assert.Equal(t, RecomputePayload{Caliber: "21/25", Presentation: models.PresentationLive, LookbackDays: 60}, pub.payloads[1])

	n, dup, err = EnqueueRecompute(context.Background(), pub, keys[:1], 30)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, dup)
	assert.Len(t, pub.payloads, 2)

	pub = &fakePublisher{failAt: 2}
	n, _, err = EnqueueRecompute(context.Background(), pub, keys, 60)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestRecomputePayloadKeyIgnoresLookback(t *testing.T) {
	a := RecomputePayload{Caliber: "16/20", Presentation: models.PresentationHeadless, LookbackDays: 30}
	b := RecomputePayload{Caliber: "16/20", Presentation: models.PresentationHeadless, LookbackDays: 90}
	c := RecomputePayload{Caliber: "16/20", Presentation: models.PresentationWhole, LookbackDays: 30}
	assert.Equal(t, a.QueueKey(), b.QueueKey())
	assert.NotEqual(t, a.QueueKey(), c.QueueKey())
}
