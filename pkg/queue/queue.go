package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCoalesced is returned by Enqueue when a message with the same type and
// key is still waiting or running. The new message is dropped.
var ErrCoalesced = errors.New("queue: identical message already pending")

// Keyed payloads are coalesced: at most one message per type and key is
// pending at a time.
type Keyed interface {
	QueueKey() string
}

// Publisher enqueues typed messages.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Queue runs registered jobs for the messages it is given.
type Queue interface {
	Publisher
	RegisterJob(job Job)
	Start() error
	Stop(ctx context.Context) error
}

// Inspector reports queue depth.
type Inspector interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats counts the messages in each state.
type Stats struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers      int           // number of workers
	RetryLimit   int           // retries before a message goes to the dead letter list
	RetryDelay   time.Duration // first retry delay, doubled per attempt
	PollInterval time.Duration // how long a worker blocks waiting for work
	JobTimeout   time.Duration // upper bound for one Handle call
	DeadCap      int64         // dead letters kept, oldest dropped first
	PendingTTL   time.Duration // how long a coalescing key outlives a lost message
}

func (c *QueueConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.DeadCap <= 0 {
		c.DeadCap = 1000
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 10 * time.Minute
	}
}

// retryAfter doubles RetryDelay per attempt up to 32 times the base.
func (c QueueConfig) retryAfter(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return c.RetryDelay << uint(attempt-1)
}

// Message is the envelope stored in the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &result, nil
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}

func newMessage(msgType string, payload interface{}) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, err
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: time.Now().UTC()}
	if k, ok := payload.(Keyed); ok {
		msg.Key = k.QueueKey()
	}
	return msg, nil
}
