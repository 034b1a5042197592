package kafka

import (
	"context"

	"ShrimpCast/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling. A BeforeHandle error skips the handler
// and counts as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// LoggingHook logs failed attempts at debug level and the final failure of a
// record with its partition and offset, so a price record that never made it
// into the store can be found again.
type LoggingHook struct {
	NoopHook
	l *logger.Logger
}

func NewLoggingHook(l *logger.Logger) *LoggingHook {
	if l == nil {
		l = logger.Nop()
	}
	return &LoggingHook{l: l}
}

func (h *LoggingHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
	if err == nil {
		return
	}
	h.l.Debug("kafka attempt failed",
		logger.String("topic", topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.String("trace_id", TraceIDFrom(ctx)),
		logger.Error(err))
}

func (h *LoggingHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	h.l.Error("kafka record rejected",
		logger.String("topic", topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.String("key", string(km.Key)),
		logger.Int("bytes", len(data)),
		logger.String("trace_id", TraceIDFrom(ctx)),
		logger.Error(err))
}

type ctxKey struct{}

// TraceIDFrom returns the trace id copied from the record's "trace_id"
// header, if any.
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func withTraceID(ctx context.Context, km kafka.Message) context.Context {
	for _, h := range km.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return context.WithValue(ctx, ctxKey{}, string(h.Value))
		}
	}
	return ctx
}
