package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

const (
	orderColumns = `id, order_number, buyer_id, seller_id, status, sub_total_cents, total_cents,
		shipping_address, payment_method, payment_details, created_at, updated_at`

	defaultListLimit = 50
	maxListLimit     = 200
)

// Repo stores orders, their items and status history in Postgres.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) NextSequence(ctx context.Context, period string) (int64, error) {
	var v int64
	err := postgres.Conn(ctx, r.DB).QueryRow(ctx, `
		INSERT INTO order_counters(period, value) VALUES ($1, 1)
		ON CONFLICT (period) DO UPDATE SET value = order_counters.value + 1
		RETURNING value`, period).Scan(&v)
	return v, err
}

func (r *Repo) Insert(ctx context.Context, o Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	details := o.PaymentDetails
	if details == nil {
		details = map[string]string{}
	}
	det, err := json.Marshal(details)
	if err != nil {
		return err
	}

	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, string(o.Status), o.SubTotalCents, o.TotalCents,
		addr, o.PaymentMethod, det, o.CreatedAt, o.UpdatedAt)
	for i, it := range o.Items {
		b.Queue(`
			INSERT INTO order_items(order_id, line_no, product_id, product_name, product_type, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i+1, it.ProductID, it.Name, it.Type, it.Quantity, it.PriceCents)
	}
	for i, e := range o.History.Entries() {
		b.Queue(`
			INSERT INTO order_status_history(order_id, seq, status, note, actor_id, changed_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i+1, string(e.Status), e.Note, e.ActorID, e.ChangedAt)
	}
	if err := execBatch(ctx, postgres.Conn(ctx, r.DB), b); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("orders: order %s (%s) already exists: %w", o.ID, o.OrderNumber, err)
		}
		return err
	}
	return nil
}

func (r *Repo) FindByID(ctx context.Context, orderID string) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
}

func (r *Repo) LockByID(ctx context.Context, orderID string) (Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID)
}

// AppendStatus adds entry as the next history row and moves orders.status to
// it in one round trip.
func (r *Repo) AppendStatus(ctx context.Context, orderID string, entry StatusEntry) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO order_status_history(order_id, seq, status, note, actor_id, changed_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
		FROM order_status_history WHERE order_id = $1`,
		orderID, string(entry.Status), entry.Note, entry.ActorID, entry.ChangedAt)
	b.Queue(`UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, orderID, string(entry.Status), entry.ChangedAt)

	br := postgres.Conn(ctx, r.DB).SendBatch(ctx, b)
	if _, err := br.Exec(); err != nil {
		_ = br.Close()
		return err
	}
	ct, err := br.Exec()
	if err != nil {
		_ = br.Close()
		return err
	}
	if err := br.Close(); err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	q := postgres.Conn(ctx, r.DB)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadDetails(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) load(ctx context.Context, sql, orderID string) (Order, error) {
	q := postgres.Conn(ctx, r.DB)
	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return Order{}, err
	}
	list := []Order{o}
	if err := loadDetails(ctx, q, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o         Order
		status    string
		addr, det []byte
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &status, &o.SubTotalCents, &o.TotalCents,
		&addr, &o.PaymentMethod, &det, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return Order{}, fmt.Errorf("decode shipping address of %s: %w", o.ID, err)
		}
	}
	if len(det) > 0 {
		if err := json.Unmarshal(det, &o.PaymentDetails); err != nil {
			return Order{}, fmt.Errorf("decode payment details of %s: %w", o.ID, err)
		}
	}
	return o, nil
}

// loadDetails fills items and history for every order in two queries.
func loadDetails(ctx context.Context, q postgres.Querier, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	pos := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		pos[o.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, product_name, product_type, qty, price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			orderID string
			it      Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Type, &it.Quantity, &it.PriceCents); err != nil {
			rows.Close()
			return err
		}
		o := &list[pos[orderID]]
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `
		SELECT order_id, status, note, actor_id, changed_at
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	entries := make(map[string][]StatusEntry, len(list))
	for rows.Next() {
		var (
			orderID, status string
			e               StatusEntry
		)
		if err := rows.Scan(&orderID, &status, &e.Note, &e.ActorID, &e.ChangedAt); err != nil {
			return err
		}
		e.Status = Status(status)
		entries[orderID] = append(entries[orderID], e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, es := range entries {
		list[pos[id]].History = NewStatusHistory(es...)
	}
	return nil
}

func execBatch(ctx context.Context, q postgres.Querier, b *pgx.Batch) error {
	br := q.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
