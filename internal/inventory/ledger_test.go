package inventory

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

// Set ORDERS_TEST_POSTGRES_DSN to run against a scratch database.
func testLedger(t *testing.T) (*Ledger, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("ORDERS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn, postgres.Options{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return NewLedger(pool, postgres.NewTxManager(pool)), pool
}

func addProduct(t *testing.T, pool *pgxpool.Pool, seller string, price int64, qty int) string {
	t.Helper()
	id := "test-" + uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO products(id, seller_id, name, price_cents, quantity_available)
		VALUES ($1, $2, $3, $4, $5)`, id, seller, "product "+id[:13], price, qty)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM products WHERE id = $1`, id)
	})
	return id
}

func available(t *testing.T, l *Ledger, id string) int {
	t.Helper()
	rows, err := l.Availability(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0].QuantityAvailable
}

func TestReserveAndRelease(t *testing.T) {
	l, pool := testLedger(t)
	ctx := context.Background()
	p1 := addProduct(t, pool, "S1", 500, 3)
	p2 := addProduct(t, pool, "S2", 300, 1)

	require.NoError(t, l.Reserve(ctx, []orders.InventoryDelta{
		{ProductID: p1, QuantityDelta: -2, SalesDelta: 2, RevenueDeltaCents: 1000},
		{ProductID: p2, QuantityDelta: -1, SalesDelta: 1, RevenueDeltaCents: 300},
	}))
	assert.Equal(t, 1, available(t, l, p1))
	assert.Equal(t, 0, available(t, l, p2))

	var sales int
	var revenue int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT total_sales, total_revenue_cents FROM products WHERE id = $1`, p1).Scan(&sales, &revenue))
	assert.Equal(t, 2, sales)
	assert.Equal(t, int64(1000), revenue)

	require.NoError(t, l.Release(ctx, []orders.StockLine{{ProductID: p1, Quantity: 1}, {ProductID: p1, Quantity: 1}}))
	assert.Equal(t, 3, available(t, l, p1))
}

func TestReserveShortfallIsAllOrNothing(t *testing.T) {
	l, pool := testLedger(t)
	ctx := context.Background()
	p1 := addProduct(t, pool, "S1", 500, 3)
	p2 := addProduct(t, pool, "S2", 300, 0)

	err := l.Reserve(ctx, []orders.InventoryDelta{
		{ProductID: p1, QuantityDelta: -2, SalesDelta: 2},
		{ProductID: p2, QuantityDelta: -1, SalesDelta: 1},
	})
	var short *orders.InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, p2, short.ProductID)
	assert.Equal(t, 0, short.Available)
	assert.Equal(t, 3, available(t, l, p1))

	err = l.Reserve(ctx, []orders.InventoryDelta{{ProductID: "test-missing", QuantityDelta: -1}})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)

	err = l.Release(ctx, []orders.StockLine{{ProductID: "test-missing", Quantity: 1}})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)

	err = l.Reserve(ctx, []orders.InventoryDelta{{ProductID: p1, QuantityDelta: 1}})
	assert.ErrorIs(t, err, orders.ErrInvalidInput)
}

func TestReserveJoinsCallerTransaction(t *testing.T) {
	l, pool := testLedger(t)
	ctx := context.Background()
	p1 := addProduct(t, pool, "S1", 500, 5)
	boom := errors.New("later step failed")

	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := l.Reserve(ctx, []orders.InventoryDelta{{ProductID: p1, QuantityDelta: -4, SalesDelta: 4}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, available(t, l, p1))
}

func TestConcurrentReserveNeverGoesNegative(t *testing.T) {
	l, pool := testLedger(t)
	p1 := addProduct(t, pool, "S1", 100, 10)
	p2 := addProduct(t, pool, "S1", 100, 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// alternate the line order so lock ordering is exercised
			deltas := []orders.InventoryDelta{
				{ProductID: p1, QuantityDelta: -1, SalesDelta: 1},
				{ProductID: p2, QuantityDelta: -1, SalesDelta: 1},
			}
			if i%2 == 1 {
				deltas[0], deltas[1] = deltas[1], deltas[0]
			}
			err := l.Reserve(context.Background(), deltas)
			if err != nil {
				assert.ErrorIs(t, err, orders.ErrInsufficientInventory)
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 0, available(t, l, p1))
	assert.Equal(t, 0, available(t, l, p2))
}
