package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShrimpCast/pkg/logger"
)

// LocalQueue runs jobs in process when Redis is not configured. It follows
// the RedisQueue contract, coalescing included, but loses its messages on
// restart and keeps no dead list.
type LocalQueue struct {
	log  *logger.Logger
	cfg  QueueConfig
	ch   chan Message
	jobs map[string]Job

	mu      sync.Mutex
	pending map[string]struct{}
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalQueue buffers up to size messages.
func NewLocalQueue(l *logger.Logger, cfg QueueConfig, size int) *LocalQueue {
	cfg.applyDefaults()
	if size <= 0 {
		size = 256
	}
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		log:     l,
		cfg:     cfg,
		ch:      make(chan Message, size),
		jobs:    make(map[string]Job),
		pending: make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (q *LocalQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Type()] = job
}

func (q *LocalQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.log.Info("local queue started", logger.Int("workers", q.cfg.Workers))
	return nil
}

func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("local queue drain: %w", ctx.Err())
	}
}

// Enqueue fails fast when the buffer is full.
func (q *LocalQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return errors.New("queue not running")
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	pk := msg.Type + ":" + msg.Key
	if msg.Key != "" {
		if _, dup := q.pending[pk]; dup {
			return ErrCoalesced
		}
	}
	select {
	case q.ch <- msg:
	default:
		return errors.New("queue full")
	}
	if msg.Key != "" {
		q.pending[pk] = struct{}{}
	}
	return nil
}

// Stats reports buffered messages as ready. Retries wait inside a worker and
// are not counted.
func (q *LocalQueue) Stats(context.Context) (Stats, error) {
	return Stats{Ready: int64(len(q.ch))}, nil
}

func (q *LocalQueue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.handle(msg)
			q.release(msg)
		}
	}
}

func (q *LocalQueue) release(msg Message) {
	if msg.Key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, msg.Type+":"+msg.Key)
	q.mu.Unlock()
}

func (q *LocalQueue) handle(msg Message) {
	q.mu.Lock()
	job := q.jobs[msg.Type]
	q.mu.Unlock()

	for {
		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.JobTimeout)
		err := job.Handle(ctx, msg.Payload)
		cancel()
		if err == nil || q.ctx.Err() != nil {
			return
		}
		q.log.Warn("message failed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.cfg.RetryLimit {
			q.log.Error("message out of retries", logger.String("id", msg.ID), logger.String("job", job.Name()))
			return
		}
		msg.Attempts++
		select {
		case <-time.After(q.cfg.retryAfter(msg.Attempts)):
		case <-q.ctx.Done():
			return
		}
	}
}

var (
	_ Queue     = (*LocalQueue)(nil)
	_ Inspector = (*LocalQueue)(nil)
)
