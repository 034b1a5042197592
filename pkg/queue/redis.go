package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ShrimpCast/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// promoteDue moves up to ARGV[2] delayed messages whose retry time has come
// from the delayed set KEYS[1] onto the ready list KEYS[2].
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue keeps recompute work in Redis so it survives a restart. Ready
// messages sit in a list, failed ones wait in a sorted set scored by retry
// time, and messages out of retries land on a capped dead list.
//
// Keys under prefix:
//
//	ready            list of encoded messages, consumed from the right
//	delayed          zset of messages waiting for a retry
//	dead             capped list of messages that ran out of retries
//	pending:<t>:<k>  coalescing marker of a keyed message
type RedisQueue struct {
	log    *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisQueue stores its keys under "shrimpcast:queue:<name>".
func NewRedisQueue(l *logger.Logger, cfg QueueConfig, client *redis.Client, name string) *RedisQueue {
	cfg.applyDefaults()
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		log:    l,
		cfg:    cfg,
		client: client,
		prefix: "shrimpcast:queue:" + name,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *RedisQueue) key(part string) string { return r.prefix + ":" + part }

func (r *RedisQueue) pendingKey(msg Message) string {
	return r.prefix + ":pending:" + msg.Type + ":" + msg.Key
}

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	r.wg.Add(1)
	go r.promote()

	r.log.Info("redis queue started",
		logger.String("prefix", r.prefix),
		logger.Int("workers", r.cfg.Workers),
		logger.Int("jobs", len(r.jobs)))
	return nil
}

// Stop cancels running jobs, which puts their messages back on the ready
// list, and waits for the workers until ctx ends.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("redis queue drain: %w", ctx.Err())
	}
}

// Enqueue pushes a message for a registered job. A keyed payload whose twin
// is still pending is dropped with ErrCoalesced.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	if msg.Key != "" {
		ok, err := r.client.SetNX(ctx, r.pendingKey(msg), msg.ID, r.cfg.PendingTTL).Result()
		if err != nil {
			return fmt.Errorf("claim %s: %w", msg.Key, err)
		}
		if !ok {
			return ErrCoalesced
		}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("ready"), body).Err(); err != nil {
		if msg.Key != "" {
			r.client.Del(ctx, r.pendingKey(msg))
		}
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Stats reports how many messages are ready, delayed and dead.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	ready := pipe.LLen(ctx, r.key("ready"))
	delayed := pipe.ZCard(ctx, r.key("delayed"))
	dead := pipe.LLen(ctx, r.key("dead"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Ready: ready.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) work() {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, r.cfg.PollInterval, r.key("ready")).Result()
		switch {
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
			continue
		case err != nil:
			r.log.Error("queue pop", logger.Error(err))
			r.sleep(time.Second)
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("queue decode", logger.Error(err))
			continue
		}
		r.handle(msg)
	}
}

func (r *RedisQueue) handle(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.bury(msg, errors.New("no job for type"))
		return
	}

	l := r.log.With(logger.String("id", msg.ID), logger.String("job", job.Name()), logger.Int("attempt", msg.Attempts+1))
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	cancel()

	switch {
	case err == nil:
		l.Debug("message processed", logger.Duration("elapsed_ms", time.Since(start)))
		r.release(msg)
	case r.ctx.Err() != nil:
		// Shutting down: hand the message to the next process untouched.
		r.push(context.Background(), "ready", msg)
	case msg.Attempts < r.cfg.RetryLimit:
		msg.Attempts++
		at := time.Now().Add(r.cfg.retryAfter(msg.Attempts))
		l.Warn("message failed, retry scheduled", logger.Time("retry_at", at), logger.Error(err))
		r.delay(msg, at)
	default:
		l.Error("message out of retries", logger.Error(err))
		r.bury(msg, err)
	}
}

func (r *RedisQueue) push(ctx context.Context, list string, msg Message) {
	body, err := json.Marshal(msg)
	if err == nil {
		err = r.client.RPush(ctx, r.key(list), body).Err()
	}
	if err != nil {
		r.log.Error("queue requeue", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) delay(msg Message, at time.Time) {
	body, err := json.Marshal(msg)
	if err == nil {
		err = r.client.ZAdd(context.Background(), r.key("delayed"), redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: body,
		}).Err()
	}
	if err != nil {
		r.log.Error("queue delay", logger.String("id", msg.ID), logger.Error(err))
	}
}

// bury moves msg to the dead list, trimmed to DeadCap, and frees its key.
func (r *RedisQueue) bury(msg Message, cause error) {
	entry := struct {
		Message
		Error string    `json:"error"`
		Died  time.Time `json:"died_at"`
	}{msg, cause.Error(), time.Now().UTC()}
	body, err := json.Marshal(entry)
	if err != nil {
		r.log.Error("queue bury", logger.Error(err))
		return
	}
	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key("dead"), body)
	pipe.LTrim(ctx, r.key("dead"), 0, r.cfg.DeadCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("queue bury", logger.String("id", msg.ID), logger.Error(err))
	}
	r.release(msg)
}

func (r *RedisQueue) release(msg Message) {
	if msg.Key == "" {
		return
	}
	if err := r.client.Del(context.Background(), r.pendingKey(msg)).Err(); err != nil {
		r.log.Warn("queue release", logger.String("key", msg.Key), logger.Error(err))
	}
}

func (r *RedisQueue) promote() {
	defer r.wg.Done()
	every := r.cfg.RetryDelay / 2
	if every < 100*time.Millisecond {
		every = 100 * time.Millisecond
	}
	if every > 5*time.Second {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			err := promoteDue.Run(r.ctx, r.client, []string{r.key("delayed"), r.key("ready")}, now, 100).Err()
			if err != nil && r.ctx.Err() == nil {
				r.log.Error("queue promote", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.ctx.Done():
	}
}

var (
	_ Queue     = (*RedisQueue)(nil)
	_ Inspector = (*RedisQueue)(nil)
)
