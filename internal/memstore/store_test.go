package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

func testOrder(id string) orders.Order {
	o := orders.Order{ID: id, OrderNumber: "N-" + id, BuyerID: "B1", SellerID: "S1",
		Items: []orders.Item{{ProductID: "P1", Quantity: 1, PriceCents: 100}}}
	return o.WithStatus(orders.StatusEntry{Status: orders.StatusPending, ChangedAt: time.Now().UTC()})
}

func TestUncommittedWritesAreHiddenUntilCommit(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "P1", SellerID: "S1", PriceCents: 100, QuantityAvailable: 2})
	ctx := context.Background()

	inTx, commit := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.Reserve(ctx, []orders.InventoryDelta{{ProductID: "P1", QuantityDelta: -2, SalesDelta: 2}}); err != nil {
				return err
			}
			if err := s.Insert(ctx, testOrder("o1")); err != nil {
				return err
			}
			if err := s.AddPurchase(ctx, "B1", 200); err != nil {
				return err
			}
			// the transaction sees its own writes
			if _, err := s.FindByID(ctx, "o1"); err != nil {
				return err
			}
			close(inTx)
			<-commit
			return nil
		})
	}()
	<-inTx

	avail, err := s.Availability(ctx, []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, 2, avail[0].QuantityAvailable)
	_, err = s.FindByID(ctx, "o1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	list, err := s.List(ctx, orders.ListFilter{BuyerID: "B1"})
	require.NoError(t, err)
	assert.Empty(t, list)
	m, err := s.Metrics(ctx, "B1")
	require.NoError(t, err)
	assert.Zero(t, m.TotalPurchases)

	close(commit)
	require.NoError(t, <-done)

	p, _ := s.Product("P1")
	assert.Equal(t, 0, p.QuantityAvailable)
	assert.Equal(t, 2, p.TotalSales)
	_, err = s.FindByID(ctx, "o1")
	assert.NoError(t, err)
	m, _ = s.Metrics(ctx, "B1")
	assert.Equal(t, 1, m.TotalPurchases)
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "P1", SellerID: "S1", QuantityAvailable: 3})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Reserve(ctx, []orders.InventoryDelta{{ProductID: "P1", QuantityDelta: -1}}))
		_, err := s.NextSequence(ctx, "202610")
		require.NoError(t, err)
		require.NoError(t, s.Insert(ctx, testOrder("o1")))
		// nested calls join the outer transaction
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context) error {
			return s.AppendStatus(ctx, "o1", orders.StatusEntry{Status: orders.StatusProcessing})
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, _ := s.Product("P1")
	assert.Equal(t, 3, p.QuantityAvailable)
	assert.Zero(t, s.OrderCount())
	seq, err := s.NextSequence(ctx, "202610")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestWritesOutsideATransactionCommitImmediately(t *testing.T) {
	s := New()
	s.PutProduct(orders.Product{ID: "P1", SellerID: "S1", QuantityAvailable: 1})
	ctx := context.Background()

	var short *orders.InsufficientInventoryError
	err := s.Reserve(ctx, []orders.InventoryDelta{{ProductID: "P1", QuantityDelta: -2}})
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 1, short.Available)

	require.NoError(t, s.Release(ctx, []orders.StockLine{{ProductID: "P1", Quantity: 4}}))
	p, _ := s.Product("P1")
	assert.Equal(t, 5, p.QuantityAvailable)
}
