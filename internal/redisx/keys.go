package redisx

import "time"

const (
	// idem:checkout:{buyer_id}:{idempotency_key} -> "pending" | response body
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// order_status:{order_id} -> StatusView JSON
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
