package models

import "time"

type EventType string

const (
	EventPriceConsolidated  EventType = "price.consolidated"
	EventDispatchRecorded   EventType = "dispatch.recorded"
	EventCorrelationUpdated EventType = "correlation.updated"
)

// Event is what gets published to Kafka and pushed to websocket clients.
type Event struct {
	Type    EventType   `json:"type"`
	At      time.Time   `json:"at"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
}

// DispatchRecord is one dispatch price submitted by a processor.
type DispatchRecord struct {
	Caliber      string       `json:"caliber"`
	Presentation Presentation `json:"presentation"`
	Date         time.Time    `json:"date"`
	Price        float64      `json:"price"`
	Origin       string       `json:"origin"`
}

// Consolidation is the result of one day's source fusion.
type Consolidation struct {
	Date   time.Time                    `json:"date"`
	Status string                       `json:"status"`
	Prices map[string]ConsolidatedPrice `json:"prices"`
}

const (
	ConsolidationOK      = "OK"
	ConsolidationDerived = "DERIVED"
	ConsolidationNoData  = "NO_DATA"
)
