package repository

import (
	"context"
	"testing"

	"ShrimpCast/internal/domain/models"
	pkgkafka "ShrimpCast/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentRecord struct {
	topic string
	key   string
	value interface{}
}

type capturePublisher struct {
	sent   []sentRecord
	closed bool
}

func (c *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	c.sent = append(c.sent, sentRecord{topic: topic, key: string(key), value: value})
	return nil
}

func (c *capturePublisher) Close() error {
	c.closed = true
	return nil
}

func TestKafkaEventPublisherRoutesByEventType(t *testing.T) {
	out := &capturePublisher{}
	p := NewKafkaEventPublisher(out, pkgkafka.DefaultTopics())
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventPriceConsolidated, Key: "2025-03-01"}))
	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventDispatchRecorded, Key: "16/20|HEADLESS"}))
	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventCorrelationUpdated, Key: "16/20|HEADLESS"}))

	require.Len(t, out.sent, 3)
	assert.Equal(t, "shrimpcast.price.consolidated", out.sent[0].topic)
	assert.Equal(t, "2025-03-01", out.sent[0].key)
	assert.Equal(t, "shrimpcast.dispatch.recorded", out.sent[1].topic)
	assert.Equal(t, "shrimpcast.correlation.updated", out.sent[2].topic)

	err := p.Publish(ctx, models.Event{Type: "price.scraped"})
	assert.Error(t, err)
	assert.Len(t, out.sent, 3)

	require.NoError(t, p.Close())
	assert.True(t, out.closed)
}
