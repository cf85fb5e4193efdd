package redisx

import "time"

const (
	// Idempotency shortcut for order placement: idem:order:place:{external_id} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Live stock level mirror for storefront reads: stock:{sku} -> int
	KeyStock = "stock:%s"

	// Event dedup per consumer: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLStock       = 10 * time.Minute
)
