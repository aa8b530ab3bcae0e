package notify

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type Appender interface {
	Append(ctx context.Context, eventID string, n orders.Notification) (bool, error)
}

type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Service consumes NotificationRequested events into the notifications
// table. Dedup is optional; the event_id constraint already makes writes
// idempotent, Redis only short-circuits redeliveries.
type Service struct {
	Store   Appender
	Dedup   Deduper
	Log     *zap.Logger
	Metrics *observability.Metrics
}

// HandleNotification is installed as the consumer handler. Malformed events
// are logged and committed so they cannot block the partition.
func (s *Service) HandleNotification(ctx context.Context, m kafkago.Message) error {
	log := observability.OrNop(s.Log)

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		log.Warn("dropping malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		s.Metrics.NoticeConsumed("malformed")
		return nil
	}
	if env.EventType != orders.EventNotificationRequested {
		s.Metrics.NoticeConsumed("ignored")
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.NotificationPayload](env.Payload)
	if err != nil || p.UserID == "" {
		if err == nil {
			err = errors.New("payload has no user id")
		}
		log.Warn("dropping malformed notification", zap.String("event_id", env.EventID), zap.Error(err))
		s.Metrics.NoticeConsumed("malformed")
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.Claim(ctx, env.EventID)
		switch {
		case err != nil:
			log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		case !first:
			s.Metrics.NoticeConsumed("duplicate")
			return nil
		}
	}

	inserted, err := s.Store.Append(ctx, env.EventID, orders.Notification{
		UserID:    p.UserID,
		Message:   p.Message,
		Type:      p.Type,
		Link:      p.Link,
		CreatedAt: env.OccurredAt,
	})
	if err != nil {
		if s.Dedup != nil {
			if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
				log.Warn("dedup forget failed", zap.String("event_id", env.EventID), zap.Error(ferr))
			}
		}
		s.Metrics.NoticeConsumed("failed")
		return err
	}
	if !inserted {
		s.Metrics.NoticeConsumed("duplicate")
		return nil
	}
	s.Metrics.NoticeConsumed("stored")
	log.Debug("notification stored",
		zap.String("event_id", env.EventID),
		zap.String("user_id", p.UserID),
		zap.String("trace_id", env.TraceID))
	return nil
}
