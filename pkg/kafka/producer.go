package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Publisher is the subset of Producer that services depend on.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

var errNoBrokers = errors.New("kafka: at least one broker is required")

// Producer writes JSON records, hashed by key so one series lands on one
// partition.
type Producer struct {
	w     *kafka.Writer
	codec string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: int(kafka.RequireAll),
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		Linger:       time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	producerMetricsOnce()
	return &Producer{
		codec: cfg.Compression,
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  codec,
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.Linger,
		},
	}, nil
}

// Publish encodes value and writes it to topic. Byte slices and strings are
// sent as is; anything else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	body, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", topic, err)
	}
	start := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: body, Time: start})
	observePublish(topic, p.codec, len(body), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

// PublishMessage publishes payload without a key. It lets the log collector
// ship batches through the producer.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return nil, errors.New("nil value")
	default:
		return json.Marshal(v)
	}
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "", "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("kafka: unknown compression %q", name)
}

var (
	publishedRecords *prometheus.CounterVec
	publishedBytes   *prometheus.CounterVec
	publishLatency   *prometheus.HistogramVec
	producerInit     sync.Once
)

func producerMetricsOnce() {
	producerInit.Do(registerProducerMetrics)
}

func registerProducerMetrics() {
	publishedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shrimpcast", Subsystem: "kafka_producer", Name: "records_total",
		Help: "Records written to Kafka by topic and outcome.",
	}, []string{"topic", "result"})
	publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shrimpcast", Subsystem: "kafka_producer", Name: "bytes_total",
		Help: "Payload bytes written to Kafka.",
	}, []string{"topic", "compression"})
	publishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shrimpcast", Subsystem: "kafka_producer", Name: "write_seconds",
		Help:    "Time spent in WriteMessages.",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10},
	}, []string{"topic"})
}

func observePublish(topic, codec string, size int, took time.Duration, err error) {
	if publishedRecords == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	publishedRecords.WithLabelValues(topic, result).Inc()
	publishedBytes.WithLabelValues(topic, codec).Add(float64(size))
	publishLatency.WithLabelValues(topic).Observe(took.Seconds())
}
