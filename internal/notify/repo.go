package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

const defaultListLimit = 50

// Repo is the notifications table.
type Repo struct{ DB *pgxpool.Pool }

// Append stores n once per eventID and reports whether a row was written.
func (r *Repo) Append(ctx context.Context, eventID string, n orders.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = orders.NotificationTypeOrder
	}
	tag, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO notifications(id, event_id, user_id, type, message, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		uuid.NewString(), eventID, n.UserID, n.Type, n.Message, n.Link, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Notify writes straight to the table. It is the sink used when no broker
// is configured.
func (r *Repo) Notify(ctx context.Context, n orders.Notification) error {
	_, err := r.Append(ctx, uuid.NewString(), n)
	return err
}

// ListNotifications returns the user's newest notices first.
func (r *Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]orders.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx, `
		SELECT user_id, message, type, link, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Notification
	for rows.Next() {
		var n orders.Notification
		if err := rows.Scan(&n.UserID, &n.Message, &n.Type, &n.Link, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
