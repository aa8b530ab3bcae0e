package notify

import (
	"context"
	"encoding/json"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// KafkaSink hands notices to the notifications topic; the notifier process
// persists them.
type KafkaSink struct {
	Producer Publisher
	Service  string
}

func (s *KafkaSink) Notify(ctx context.Context, n orders.Notification) error {
	env, err := kafkax.NewEnvelope(orders.EventNotificationRequested, s.Service, orders.NotificationPayload{
		UserID:  n.UserID,
		Message: n.Message,
		Type:    n.Type,
		Link:    n.Link,
	})
	if err != nil {
		return err
	}
	if !n.CreatedAt.IsZero() {
		env.OccurredAt = n.CreatedAt.UTC()
	}
	env.CorrelationID = n.Link
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Producer.Publish(orders.PartitionKey(n.UserID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
