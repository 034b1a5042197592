package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsForEvent(t *testing.T) {
	topics := DefaultTopics()

	got, ok := topics.ForEvent("price.consolidated")
	require.True(t, ok)
	assert.Equal(t, "shrimpcast.price.consolidated", got)

	got, ok = topics.ForEvent("correlation.updated")
	require.True(t, ok)
	assert.Equal(t, "shrimpcast.correlation.updated", got)

	_, ok = topics.ForEvent("trade.executed")
	assert.False(t, ok)

	topics.DispatchRecorded = ""
	_, ok = topics.ForEvent("dispatch.recorded")
	assert.False(t, ok, "an unset topic disables the event type")
}

func TestTopicsValidate(t *testing.T) {
	assert.NoError(t, DefaultTopics().Validate())

	loop := DefaultTopics()
	loop.SourceQuotes = loop.PriceConsolidated
	assert.Error(t, loop.Validate())

	same := DefaultTopics()
	same.DispatchPrices = same.SourceQuotes
	assert.Error(t, same.Validate())

	missing := DefaultTopics()
	missing.DispatchPrices = ""
	assert.Error(t, missing.Validate())
}

func TestSeriesKey(t *testing.T) {
	assert.Equal(t, "16/20", string(SeriesKey("16/20", "")))
	assert.Equal(t, "16/20|HEADLESS", string(SeriesKey("16/20", "HEADLESS")))
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorIs(t, err, errNoBrokers)

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli"))
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithBatching(10, 50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 10, p.w.BatchSize)
	assert.Equal(t, 50*time.Millisecond, p.w.BatchTimeout)
	require.NoError(t, p.Close())
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]float64{"price": 3.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":3.5}`, string(b))

	b, err = encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	_, err = encode(nil)
	assert.Error(t, err)
}

func TestBackoffStaysInRange(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoff(10*time.Millisecond, 200*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
	first := backoff(10*time.Millisecond, time.Second, 1)
	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.LessOrEqual(t, first, 10*time.Millisecond)
}
