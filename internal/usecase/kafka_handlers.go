package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ShrimpCast/internal/domain/models"
	"ShrimpCast/pkg/kafka"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/util"
)

// DispatchPriceMessage is the payload of the dispatch prices topic.
type DispatchPriceMessage struct {
	Caliber      string  `json:"caliber"`
	Presentation string  `json:"presentation"`
	Date         string  `json:"date"`
	Price        float64 `json:"price"`
	Origin       string  `json:"origin"`
}

// SourceQuotesMessage is the payload of the source quotes topic.
type SourceQuotesMessage struct {
	Date       string                                   `json:"date"`
	Quotes     map[string]map[string]models.SourceQuote `json:"quotes"`
	UnitValues map[string]float64                       `json:"unit_values"`
}

// DispatchPricesHandler stores dispatch prices published by processors.
// Rejected records are logged and acknowledged; only store failures are
// returned so the consumer retries them.
type DispatchPricesHandler struct {
	topic    string
	ingestor *PriceIngestor
	l        *logger.Logger
}

func NewDispatchPricesHandler(topic string, ingestor *PriceIngestor) *DispatchPricesHandler {
	return &DispatchPricesHandler{topic: topic, ingestor: ingestor, l: ingestor.logger.Named("kafka_dispatch")}
}

func (h *DispatchPricesHandler) Topic() string { return h.topic }

func (h *DispatchPricesHandler) Handle(ctx context.Context, b []byte) error {
	var m DispatchPriceMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.ingestor.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode dispatch price: %w", err)
	}
	date, ok := util.ParseDate(m.Date)
	if !ok {
		h.l.Warn("dispatch price rejected", logger.String("date", m.Date), logger.String("reason", "bad date"))
		return nil
	}

	start := time.Now()
	_, err := h.ingestor.RecordDispatch(ctx, models.DispatchRecord{
		Caliber:      m.Caliber,
		Presentation: models.Presentation(m.Presentation),
		Date:         date,
		Price:        m.Price,
		Origin:       m.Origin,
	})
	h.ingestor.metrics.RecordLatency("consumer_dispatch", time.Since(start).Seconds())
	if errors.Is(err, models.ErrInvalidArgument) {
		h.l.Warn("dispatch price rejected",
			logger.String("caliber", m.Caliber),
			logger.String("trace_id", kafka.TraceIDFrom(ctx)),
			logger.Error(err))
		return nil
	}
	return err
}

// SourceQuotesHandler consolidates one day of scraped source quotes.
type SourceQuotesHandler struct {
	topic    string
	ingestor *PriceIngestor
	l        *logger.Logger
}

func NewSourceQuotesHandler(topic string, ingestor *PriceIngestor) *SourceQuotesHandler {
	return &SourceQuotesHandler{topic: topic, ingestor: ingestor, l: ingestor.logger.Named("kafka_quotes")}
}

func (h *SourceQuotesHandler) Topic() string { return h.topic }

func (h *SourceQuotesHandler) Handle(ctx context.Context, b []byte) error {
	var m SourceQuotesMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.ingestor.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode source quotes: %w", err)
	}
	date, ok := util.ParseDate(m.Date)
	if !ok {
		h.l.Warn("source quotes rejected", logger.String("date", m.Date), logger.String("reason", "bad date"))
		return nil
	}

	res, err := h.ingestor.ConsolidateDay(ctx, date, models.SourceQuotes{PerCaliber: m.Quotes, UnitValues: m.UnitValues})
	switch {
	case errors.Is(err, models.ErrNoData), errors.Is(err, models.ErrInvalidArgument):
		h.l.Warn("source quotes skipped",
			logger.Date("date", date),
			logger.String("trace_id", kafka.TraceIDFrom(ctx)),
			logger.Error(err))
		return nil
	case err != nil:
		return err
	}
	h.l.Debug("source quotes consolidated", logger.Date("date", date), logger.String("status", res.Status))
	return nil
}

var (
	_ kafka.MessageHandler = (*DispatchPricesHandler)(nil)
	_ kafka.MessageHandler = (*SourceQuotesHandler)(nil)
)
