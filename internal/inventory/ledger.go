package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

const (
	availabilitySQL = `
		SELECT id, name, product_type, seller_id, price_cents, quantity_available
		FROM products WHERE id = ANY($1)`

	// rows are locked in id order so concurrent batches cannot deadlock
	lockSQL = `SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	reserveSQL = `
		UPDATE products AS p
		SET quantity_available  = p.quantity_available - d.qty,
		    total_sales         = p.total_sales + d.sales,
		    total_revenue_cents = p.total_revenue_cents + d.revenue,
		    updated_at          = now()
		FROM unnest($1::text[], $2::bigint[], $3::bigint[], $4::bigint[]) AS d(id, qty, sales, revenue)
		WHERE p.id = d.id AND p.quantity_available >= d.qty
		RETURNING p.id`

	releaseSQL = `
		UPDATE products AS p
		SET quantity_available = p.quantity_available + d.qty,
		    updated_at         = now()
		FROM unnest($1::text[], $2::bigint[]) AS d(id, qty)
		WHERE p.id = d.id
		RETURNING p.id`
)

// Ledger keeps products.quantity_available on Postgres. Reserve and Release
// are single conditional statements over the whole batch; they join the
// caller's transaction when there is one.
type Ledger struct {
	DB *pgxpool.Pool
	Tx *postgres.TxManager
}

func NewLedger(pool *pgxpool.Pool, tx *postgres.TxManager) *Ledger {
	return &Ledger{DB: pool, Tx: tx}
}

func (l *Ledger) Availability(ctx context.Context, productIDs []string) ([]orders.Availability, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, l.DB).Query(ctx, availabilitySQL, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orders.Availability, 0, len(productIDs))
	for rows.Next() {
		var a orders.Availability
		if err := rows.Scan(&a.ProductID, &a.Name, &a.Type, &a.SellerID, &a.PriceCents, &a.QuantityAvailable); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *Ledger) Reserve(ctx context.Context, deltas []orders.InventoryDelta) error {
	deltas = mergeDeltas(deltas)
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]string, 0, len(deltas))
	qty := make([]int64, 0, len(deltas))
	sales := make([]int64, 0, len(deltas))
	revenue := make([]int64, 0, len(deltas))
	for _, d := range deltas {
		if d.QuantityDelta >= 0 {
			return fmt.Errorf("%w: reserve delta for %s must be negative", orders.ErrInvalidInput, d.ProductID)
		}
		ids = append(ids, d.ProductID)
		qty = append(qty, int64(-d.QuantityDelta))
		sales = append(sales, int64(d.SalesDelta))
		revenue = append(revenue, d.RevenueDeltaCents)
	}

	return l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.Conn(ctx, l.DB)
		if err := lockRows(ctx, q, ids); err != nil {
			return err
		}
		updated, err := collectIDs(q.Query(ctx, reserveSQL, ids, qty, sales, revenue))
		if err != nil {
			return err
		}
		if len(updated) == len(ids) {
			return nil
		}
		return shortfall(ctx, q, ids, qty, updated)
	})
}

func (l *Ledger) Release(ctx context.Context, lines []orders.StockLine) error {
	lines = orders.MergeStockLines(lines)
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, 0, len(lines))
	qty := make([]int64, 0, len(lines))
	for _, sl := range lines {
		if sl.Quantity < 1 {
			return fmt.Errorf("%w: release quantity for %s must be positive", orders.ErrInvalidInput, sl.ProductID)
		}
		ids = append(ids, sl.ProductID)
		qty = append(qty, int64(sl.Quantity))
	}

	return l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.Conn(ctx, l.DB)
		if err := lockRows(ctx, q, ids); err != nil {
			return err
		}
		updated, err := collectIDs(q.Query(ctx, releaseSQL, ids, qty))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !updated[id] {
				return &orders.ProductNotFoundError{ProductID: id}
			}
		}
		return nil
	})
}

func lockRows(ctx context.Context, q postgres.Querier, ids []string) error {
	_, err := collectIDs(q.Query(ctx, lockSQL, ids))
	return err
}

func collectIDs(rows pgx.Rows, err error) (map[string]bool, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// shortfall explains why the conditional update skipped some rows. The
// statement already ran, so the caller's transaction must roll back.
func shortfall(ctx context.Context, q postgres.Querier, ids []string, qty []int64, updated map[string]bool) error {
	rows, err := q.Query(ctx, `SELECT id, quantity_available FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	available := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		available[id] = n
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i, id := range ids {
		if updated[id] {
			continue
		}
		n, ok := available[id]
		if !ok {
			return &orders.ProductNotFoundError{ProductID: id}
		}
		return &orders.InsufficientInventoryError{ProductID: id, Requested: int(qty[i]), Available: n}
	}
	return fmt.Errorf("inventory: reserve updated %d of %d products", len(updated), len(ids))
}

func mergeDeltas(deltas []orders.InventoryDelta) []orders.InventoryDelta {
	idx := make(map[string]int, len(deltas))
	out := make([]orders.InventoryDelta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := idx[d.ProductID]; ok {
			out[i].QuantityDelta += d.QuantityDelta
			out[i].SalesDelta += d.SalesDelta
			out[i].RevenueDeltaCents += d.RevenueDeltaCents
			continue
		}
		idx[d.ProductID] = len(out)
		out = append(out, d)
	}
	return out
}
