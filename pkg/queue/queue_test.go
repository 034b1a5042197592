package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ShrimpCast/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recomputePayload struct {
	Caliber string `json:"caliber"`
}

type keyedPayload struct {
	Caliber string `json:"caliber"`
}

func (p keyedPayload) QueueKey() string { return p.Caliber }

// gateJob blocks every Handle until release is closed.
type gateJob struct {
	started chan string
	release chan struct{}
}

func (j *gateJob) Name() string { return "gate" }
func (j *gateJob) Type() string { return "correlation.recompute" }
func (j *gateJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := Decode[keyedPayload](payload)
	if err != nil {
		return err
	}
	j.started <- p.Caliber
	select {
	case <-j.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type recordingJob struct {
	fail  bool
	calls atomic.Int32
	seen  chan string
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "correlation.recompute" }
func (j *recordingJob) Handle(_ context.Context, payload json.RawMessage) error {
	j.calls.Add(1)
	if j.fail {
		return errors.New("boom")
	}
	p, err := Decode[recomputePayload](payload)
	if err != nil {
		return err
	}
	j.seen <- p.Caliber
	return nil
}

func newRedisQueue(t *testing.T, cfg QueueConfig) (*RedisQueue, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(logger.Nop(), cfg, client, "test"), s
}

func stop(t *testing.T, stopper interface{ Stop(context.Context) error }) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, stopper.Stop(ctx))
}

func TestRedisQueueDeliversMessages(t *testing.T) {
	q, _ := newRedisQueue(t, QueueConfig{Workers: 1})
	job := &recordingJob{seen: make(chan string, 1)}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer stop(t, q)

	require.NoError(t, q.Enqueue(context.Background(), job.Type(), recomputePayload{Caliber: "16/20"}))

	select {
	case cal := <-job.seen:
		assert.Equal(t, "16/20", cal)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRedisQueueRejectsUnknownType(t *testing.T) {
	q, _ := newRedisQueue(t, QueueConfig{})
	require.NoError(t, q.Start())
	defer stop(t, q)

	assert.Error(t, q.Enqueue(context.Background(), "unknown", nil))
}

func TestRedisQueueDeadLettersAfterRetries(t *testing.T) {
	q, s := newRedisQueue(t, QueueConfig{Workers: 1, RetryLimit: 0})
	job := &recordingJob{fail: true}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer stop(t, q)

	require.NoError(t, q.Enqueue(context.Background(), job.Type(), recomputePayload{Caliber: "21/25"}))

	require.Eventually(t, func() bool {
		list, err := s.List("shrimpcast:queue:test:dead")
		return err == nil && len(list) == 1
	}, 5*time.Second, 20*time.Millisecond)

	st, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Dead: 1}, st)
	assert.Equal(t, int32(1), job.calls.Load())

	list, err := s.List("shrimpcast:queue:test:dead")
	require.NoError(t, err)
	var dead struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(list[0]), &dead))
	assert.Equal(t, job.Type(), dead.Type)
	assert.Equal(t, "boom", dead.Error)
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q, _ := newRedisQueue(t, QueueConfig{})
	assert.Error(t, q.Enqueue(context.Background(), "x", nil))

	lq := NewLocalQueue(logger.Nop(), QueueConfig{}, 1)
	assert.Error(t, lq.Enqueue(context.Background(), "x", nil))
}

func TestLocalQueueRetriesThenSucceeds(t *testing.T) {
	lq := NewLocalQueue(logger.Nop(), QueueConfig{Workers: 1, RetryLimit: 1, RetryDelay: 10 * time.Millisecond}, 4)
	job := &flakyJob{seen: make(chan int32, 1)}
	lq.RegisterJob(job)
	require.NoError(t, lq.Start())
	defer stop(t, lq)

	require.NoError(t, lq.Enqueue(context.Background(), job.Type(), recomputePayload{Caliber: "26/30"}))
	select {
	case n := <-job.seen:
		assert.Equal(t, int32(2), n)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

type flakyJob struct {
	calls atomic.Int32
	seen  chan int32
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "correlation.recompute" }
func (j *flakyJob) Handle(_ context.Context, _ json.RawMessage) error {
	n := j.calls.Add(1)
	if n == 1 {
		return errors.New("first attempt fails")
	}
	j.seen <- n
	return nil
}

func TestRedisQueueCoalescesPendingKeys(t *testing.T) {
	q, s := newRedisQueue(t, QueueConfig{Workers: 1})
	job := &gateJob{started: make(chan string, 2), release: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer stop(t, q)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}))
	assert.ErrorIs(t, q.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}), ErrCoalesced)
	require.NoError(t, q.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "21/25"}))

	<-job.started
	assert.ErrorIs(t, q.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}), ErrCoalesced, "still running")
	close(job.release)

	require.Eventually(t, func() bool {
		return !s.Exists("shrimpcast:queue:test:pending:correlation.recompute:16/20") &&
			!s.Exists("shrimpcast:queue:test:pending:correlation.recompute:21/25")
	}, 5*time.Second, 20*time.Millisecond)
	assert.NoError(t, q.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}))
}

func TestRedisQueueRequeuesOnStop(t *testing.T) {
	q, s := newRedisQueue(t, QueueConfig{Workers: 1})
	job := &gateJob{started: make(chan string, 1), release: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())

	require.NoError(t, q.Enqueue(context.Background(), job.Type(), keyedPayload{Caliber: "31/35"}))
	<-job.started
	stop(t, q)

	list, err := s.List("shrimpcast:queue:test:ready")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0], "31/35")
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	cfg := QueueConfig{RetryDelay: time.Second}
	assert.Equal(t, time.Second, cfg.retryAfter(1))
	assert.Equal(t, 4*time.Second, cfg.retryAfter(3))
	assert.Equal(t, 32*time.Second, cfg.retryAfter(6))
	assert.Equal(t, 32*time.Second, cfg.retryAfter(20))
}

func TestLocalQueueCoalescesPendingKeys(t *testing.T) {
	lq := NewLocalQueue(logger.Nop(), QueueConfig{Workers: 1}, 4)
	job := &gateJob{started: make(chan string, 2), release: make(chan struct{})}
	lq.RegisterJob(job)
	require.NoError(t, lq.Start())
	defer stop(t, lq)
	ctx := context.Background()

	require.NoError(t, lq.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}))
	<-job.started
	assert.ErrorIs(t, lq.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}), ErrCoalesced)
	close(job.release)

	require.Eventually(t, func() bool {
		return lq.Enqueue(ctx, job.Type(), keyedPayload{Caliber: "16/20"}) == nil
	}, 5*time.Second, 20*time.Millisecond)
}
