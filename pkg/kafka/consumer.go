package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"ShrimpCast/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the records of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Workers    int
	Backlog    int
	Retries    int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DeadLetter string
	Logger     *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithGroupID(id string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if id != "" {
			c.GroupID = id
		}
	}
}

// WithWorkers sets the handler goroutines and how many fetched records may
// wait for them.
func WithWorkers(workers, backlog int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if workers > 0 {
			c.Workers = workers
		}
		if backlog > 0 {
			c.Backlog = backlog
		}
	}
}

// WithRetry retries a failing record up to retries more times with jittered
// exponential backoff between min and max.
func WithRetry(retries int, min, max time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Retries = retries
		c.BackoffMin = min
		c.BackoffMax = max
	}
}

// WithDeadLetter parks records that exhausted their retries on topic. Without
// it such records stay uncommitted.
func WithDeadLetter(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DeadLetter = topic }
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

type delivery struct {
	topic string
	msg   kafka.Message
}

// Consumer reads every registered topic with one reader and hands records to
// a worker pool. Records of one partition are handled one at a time, so the
// observations of a series are stored in publish order.
type Consumer struct {
	cfg      ConsumerConfig
	log      *logger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	queue   chan delivery
	done    chan struct{}
	fetchWG sync.WaitGroup
	workWG  sync.WaitGroup
	stop    sync.Once

	order sync.Map // "topic/partition" -> *sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:    "shrimpcast",
		Workers:    1,
		Backlog:    16,
		Retries:    3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		queue:    make(chan delivery, cfg.Backlog),
		done:     make(chan struct{}),
	}
	if cfg.DeadLetter != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DeadLetter, Balancer: &kafka.Hash{}}
	}
	consumerMetricsOnce()
	return c, nil
}

// RegisterHandler adds handler for its topic. A second handler for the same
// topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.log.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	for i := 0; i < c.cfg.Workers; i++ {
		c.workWG.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer running",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.Workers))
	return nil
}

// Stop closes the readers, lets the workers drain what was already fetched
// and waits for them until ctx ends.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stop.Do(func() {
		close(c.done)
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		c.fetchWG.Wait()
		close(c.queue)

		drained := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer drain: %w", ctx.Err())
		}

		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dead letter writer", logger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchWG.Done()
	for !c.stopping() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := r.FetchMessage(ctx)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			if c.stopping() {
				return
			}
			c.log.Error("kafka fetch", logger.String("topic", topic), logger.Error(err))
			time.Sleep(time.Second)
			continue
		}

		select {
		case c.queue <- delivery{topic: topic, msg: msg}:
			consumerBacklog.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.done:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWG.Done()
	for d := range c.queue {
		start := time.Now()
		result := c.process(d)
		consumerRecords.WithLabelValues(d.topic, result).Inc()
		consumerLatency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	mu, _ := c.order.LoadOrStore(topic+"/"+strconv.Itoa(partition), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// process handles one record and reports ok, dead_letter, failed or
// abandoned. Successful and dead-lettered records are committed.
func (c *Consumer) process(d delivery) (result string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("kafka handler panic", logger.String("topic", d.topic), logger.Any("panic", r))
			result = "panic"
		}
	}()

	mu := c.partitionLock(d.topic, d.msg.Partition)
	mu.Lock()
	defer mu.Unlock()

	handler := c.handlers[d.topic]
	ctx := withTraceID(context.Background(), d.msg)

	var err error
	for attempt := 1; ; attempt++ {
		err = c.attempt(ctx, handler, d)
		if err == nil {
			c.commit(d)
			return "ok"
		}
		if attempt > c.cfg.Retries {
			break
		}
		select {
		case <-time.After(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.done:
			return "abandoned"
		}
	}

	c.hook.OnError(ctx, d.topic, d.msg, d.msg.Value, err)
	if c.dlq == nil {
		return "failed"
	}
	if err := c.deadLetter(d, err); err != nil {
		c.log.Error("kafka dead letter", logger.String("topic", c.cfg.DeadLetter), logger.Error(err))
		return "failed"
	}
	c.commit(d)
	return "dead_letter"
}

func (c *Consumer) attempt(ctx context.Context, h MessageHandler, d delivery) error {
	hctx, data, err := c.hook.BeforeHandle(ctx, d.topic, d.msg, d.msg.Value)
	if err != nil {
		return err
	}
	err = h.Handle(hctx, data)
	c.hook.AfterHandle(hctx, d.topic, d.msg, data, err)
	return err
}

func (c *Consumer) deadLetter(d delivery, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   d.msg.Key,
		Value: d.msg.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(d.topic)},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(d.msg.Offset, 10))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

func (c *Consumer) commit(d delivery) {
	r := c.readers[d.topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, d.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka commit", logger.String("topic", d.topic), logger.Int64("offset", d.msg.Offset), logger.Error(err))
}

// backoff doubles min per attempt, caps it at max and takes off up to half
// of it at random.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 31 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerRecords *prometheus.CounterVec
	consumerLatency *prometheus.HistogramVec
	consumerBacklog *prometheus.GaugeVec
	consumerInit    sync.Once
)

func consumerMetricsOnce() {
	consumerInit.Do(func() {
		consumerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shrimpcast", Subsystem: "kafka_consumer", Name: "records_total",
			Help: "Consumed records by topic and outcome.",
		}, []string{"topic", "result"})
		consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shrimpcast", Subsystem: "kafka_consumer", Name: "handle_seconds",
			Help: "Time to handle one record including retries.",
		}, []string{"topic"})
		consumerBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shrimpcast", Subsystem: "kafka_consumer", Name: "backlog",
			Help: "Fetched records waiting for a worker.",
		}, []string{"topic"})
	})
}
