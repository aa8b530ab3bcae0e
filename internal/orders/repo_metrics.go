package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

// MetricsRepo keeps buyer and seller counters in user_metrics. Every change
// is an in-place increment, never read-modify-write.
type MetricsRepo struct{ DB *pgxpool.Pool }

func (r *MetricsRepo) AddPurchase(ctx context.Context, buyerID string, spentCents int64) error {
	_, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO user_metrics(user_id, total_purchases, total_spent_cents) VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET total_purchases   = user_metrics.total_purchases + 1,
		    total_spent_cents = user_metrics.total_spent_cents + EXCLUDED.total_spent_cents,
		    updated_at        = now()`, buyerID, spentCents)
	return err
}

func (r *MetricsRepo) AddSales(ctx context.Context, sales []SellerSales) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	units := make([]int64, 0, len(sales))
	revenue := make([]int64, 0, len(sales))
	for _, s := range mergeSales(sales) {
		ids = append(ids, s.SellerID)
		units = append(units, int64(s.Units))
		revenue = append(revenue, s.RevenueCents)
	}
	_, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO user_metrics(user_id, total_sales, total_revenue_cents)
		SELECT id, units, revenue FROM unnest($1::text[], $2::bigint[], $3::bigint[]) AS s(id, units, revenue)
		ON CONFLICT (user_id) DO UPDATE
		SET total_sales         = user_metrics.total_sales + EXCLUDED.total_sales,
		    total_revenue_cents = user_metrics.total_revenue_cents + EXCLUDED.total_revenue_cents,
		    updated_at          = now()`, ids, units, revenue)
	return err
}

func (r *MetricsRepo) Metrics(ctx context.Context, userID string) (UserMetrics, error) {
	m := UserMetrics{UserID: userID}
	err := postgres.Conn(ctx, r.DB).QueryRow(ctx, `
		SELECT total_purchases, total_spent_cents, total_sales, total_revenue_cents
		FROM user_metrics WHERE user_id=$1`, userID).
		Scan(&m.TotalPurchases, &m.TotalSpentCents, &m.TotalSales, &m.TotalRevenueCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, nil
	}
	return m, err
}

// one row per seller, otherwise ON CONFLICT would touch a row twice
func mergeSales(sales []SellerSales) []SellerSales {
	idx := make(map[string]int, len(sales))
	out := make([]SellerSales, 0, len(sales))
	for _, s := range sales {
		if i, ok := idx[s.SellerID]; ok {
			out[i].Units += s.Units
			out[i].RevenueCents += s.RevenueCents
			continue
		}
		idx[s.SellerID] = len(out)
		out = append(out, s)
	}
	return out
}
