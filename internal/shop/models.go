package shop

import "time"

// StockItem is the per-SKU ledger record. AvailableQty is the only field
// the reservation engine mutates, and only through the conditional
// decrement (or the additive restock) of a Store.
type StockItem struct {
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Category     string    `json:"category,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	AvailableQty int       `json:"available_qty"`
	Warehouse    string    `json:"warehouse,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderLine snapshots one requested SKU. PriceCents is filled in by the
// engine from the ledger at the moment the decrement succeeded, never
// taken from the caller.
type OrderLine struct {
	SKU        string `json:"sku"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

// Order is immutable once created except for Status; status transitions
// never touch Lines or TotalCents.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Lines      []OrderLine `json:"lines"`
	TotalCents int64       `json:"total_cents"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Total recomputes the line sum; stores persist TotalCents as computed by
// the engine, this exists for read-back verification.
func (o Order) Total() int64 {
	var sum int64
	for _, l := range o.Lines {
		sum += int64(l.Qty) * l.PriceCents
	}
	return sum
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category string
	Limit    int
	Offset   int
}
