package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// NewEnvelope wraps payload with a fresh event id.
func NewEnvelope(eventType, producer string, payload any) (orders.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return orders.Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: orders.EventVersion,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
		Payload:      raw,
	}, nil
}

func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return orders.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return orders.Envelope{}, fmt.Errorf("decode envelope: missing event id or type")
	}
	return env, nil
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
