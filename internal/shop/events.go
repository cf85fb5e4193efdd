package shop

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced  = "OrderPlaced"
	EventStockChanged = "StockChanged"
)

// Envelope wraps every event on the bus. Payload holds the event-specific
// body, decoded by type.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Lines      []OrderLine `json:"lines"`
	TotalCents int64       `json:"total_cents"`
}

// StockChangedPayload carries either a relative adjustment (Delta, from a
// committed decrement or restock) or an absolute level (AvailableQty, from
// a catalog upsert). When AvailableQty is set it wins.
type StockChangedPayload struct {
	SKU          string `json:"sku"`
	Delta        int    `json:"delta,omitempty"`
	AvailableQty *int   `json:"available_qty,omitempty"`
}
