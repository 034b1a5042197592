package kafka

import (
	"fmt"
	"time"
)

// Topics names every topic the service reads or writes. Outbound event
// topics are keyed by the domain event type they carry.
type Topics struct {
	PriceConsolidated  string `yaml:"price_consolidated" default:"shrimpcast.price.consolidated"`
	DispatchRecorded   string `yaml:"dispatch_recorded" default:"shrimpcast.dispatch.recorded"`
	CorrelationUpdated string `yaml:"correlation_updated" default:"shrimpcast.correlation.updated"`

	DispatchPrices string `yaml:"dispatch_prices" default:"dispatch.prices"`
	SourceQuotes   string `yaml:"source_quotes" default:"source.quotes"`

	Logs       string `yaml:"logs" default:"shrimpcast.logs"`
	DeadLetter string `yaml:"dead_letter" default:"shrimpcast.dlq"`
}

// DefaultTopics returns the topic names used when nothing is configured.
func DefaultTopics() Topics {
	return Topics{
		PriceConsolidated:  "shrimpcast.price.consolidated",
		DispatchRecorded:   "shrimpcast.dispatch.recorded",
		CorrelationUpdated: "shrimpcast.correlation.updated",
		DispatchPrices:     "dispatch.prices",
		SourceQuotes:       "source.quotes",
		Logs:               "shrimpcast.logs",
		DeadLetter:         "shrimpcast.dlq",
	}
}

// ForEvent maps a domain event type ("price.consolidated", ...) to its topic.
func (t Topics) ForEvent(eventType string) (string, bool) {
	var topic string
	switch eventType {
	case "price.consolidated":
		topic = t.PriceConsolidated
	case "dispatch.recorded":
		topic = t.DispatchRecorded
	case "correlation.updated":
		topic = t.CorrelationUpdated
	}
	return topic, topic != ""
}

// Validate rejects empty ingest topics and any ingest topic that is also
// written by the service, which would feed its own events back in.
func (t Topics) Validate() error {
	if t.DispatchPrices == "" || t.SourceQuotes == "" {
		return fmt.Errorf("dispatch_prices and source_quotes topics are required")
	}
	if t.DispatchPrices == t.SourceQuotes {
		return fmt.Errorf("dispatch_prices and source_quotes must differ, both are %q", t.SourceQuotes)
	}
	written := []string{t.PriceConsolidated, t.DispatchRecorded, t.CorrelationUpdated, t.Logs, t.DeadLetter}
	for _, in := range []string{t.DispatchPrices, t.SourceQuotes} {
		for _, out := range written {
			if in == out {
				return fmt.Errorf("topic %q is both consumed and produced", in)
			}
		}
	}
	return nil
}

// SeriesKey is the partition key of a price series so that its events stay
// ordered: "16/20" for public prices, "16/20|HEADLESS" for dispatch prices.
func SeriesKey(caliber, presentation string) []byte {
	if presentation == "" {
		return []byte(caliber)
	}
	return []byte(caliber + "|" + presentation)
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration. Messages are always balanced
// by key.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	Linger       time.Duration
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithRequiredAcks sets required acknowledgements (-1 = all replicas).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithBatching flushes after size messages or linger, whichever comes first.
func WithBatching(size int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
		if linger > 0 {
			c.Linger = linger
		}
	}
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if d > 0 {
			c.WriteTimeout = d
		}
	}
}
