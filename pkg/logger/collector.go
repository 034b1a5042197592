package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Publisher ships aggregated log batches, typically to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// DefaultVolatileFields change on every occurrence of the same problem and
// are left out when deciding whether two entries repeat each other.
var DefaultVolatileFields = []string{
	"trace_id", "offset", "partition", "id", "attempt",
	"duration_ms", "latency_ms", "elapsed_ms", "retry_at", "remote",
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries before an early flush
	Topic          string
	Publisher      Publisher
	// VolatileFields overrides DefaultVolatileFields.
	VolatileFields []string
}

// AggregatedLogEntry is one distinct warning or error and how often it
// repeated since the last flush. Fields are those of the first occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warn and error entries into counts and
// publishes them in batches.
type LogCollector struct {
	cfg      CollectionConfig
	volatile map[string]bool

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	if cfg.VolatileFields == nil {
		cfg.VolatileFields = DefaultVolatileFields
	}
	c := &LogCollector{
		cfg:      cfg,
		volatile: make(map[string]bool, len(cfg.VolatileFields)),
		entries:  make(map[uint64]*AggregatedLogEntry),
		stop:     make(chan struct{}),
	}
	for _, f := range cfg.VolatileFields {
		c.volatile[f] = true
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := c.fingerprint(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level: level, Message: message, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drain()
	}
	c.mu.Unlock()

	if batch != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

// fingerprint hashes the entry without its volatile fields. Field names are
// sorted so map order does not matter.
func (c *LogCollector) fingerprint(level, message string, fields map[string]interface{}, caller string) uint64 {
	names := make([]string, 0, len(fields))
	for k := range fields {
		if !c.volatile[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	d := xxhash.New()
	_, _ = d.WriteString(level)
	_, _ = d.WriteString("\x00" + caller + "\x00" + message)
	for _, k := range names {
		_, _ = fmt.Fprintf(d, "\x00%s=%v", k, fields[k])
	}
	return d.Sum64()
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Flush()
		case <-c.stop:
			c.Flush()
			return
		}
	}
}

// Flush publishes whatever is pending and waits for the publisher.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drain()
	c.mu.Unlock()
	c.publish(batch)
}

// drain must be called with mu held. Entries come out oldest first.
func (c *LogCollector) drain() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].Level+out[i].Message < out[j].Level+out[j].Message
	})
	c.entries = make(map[uint64]*AggregatedLogEntry)
	return out
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// The collector cannot log through itself; stderr is the fallback.
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "shrimpcast: dropped %d aggregated log entries: %v\n", len(batch), err)
	}
}

// Close flushes pending entries and stops the flush loop. It is safe to call
// more than once.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
