// Package memstore keeps products, orders, user metrics and notifications in
// process memory. Transactions are serialized and work on a private copy of
// the state that is published only on commit, so readers never observe
// uncommitted writes.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// Hooks let callers inject failures. A non-nil error aborts the operation.
type Hooks struct {
	BeforeInsert func(orders.Order) error
	BeforeNotify func(orders.Notification) error
}

type state struct {
	products      map[string]orders.Product
	orders        map[string]orders.Order
	orderSeq      []string
	counters      map[string]int64
	metrics       map[string]orders.UserMetrics
	notifications []orders.Notification
}

// notifications are written after commit and are not part of a working copy.
func (s state) clone() state {
	return state{
		products: maps.Clone(s.products),
		orders:   maps.Clone(s.orders),
		orderSeq: slices.Clone(s.orderSeq),
		counters: maps.Clone(s.counters),
		metrics:  maps.Clone(s.metrics),
	}
}

type Store struct {
	Hooks Hooks

	txMu sync.Mutex // held for the whole of a transaction
	mu   sync.Mutex // guards st, the committed state
	st   state
}

func New() *Store {
	return &Store{st: state{
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		counters: map[string]int64{},
		metrics:  map[string]orders.UserMetrics{},
	}}
}

type txKey struct{}

// RunInTx serializes fn against other transactions. fn works on a copy of
// the committed state which replaces it only when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if working(ctx) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, &work)); err != nil {
		return err
	}
	s.mu.Lock()
	work.notifications = s.st.notifications
	s.st = work
	s.mu.Unlock()
	return nil
}

func working(ctx context.Context) *state {
	w, _ := ctx.Value(txKey{}).(*state)
	return w
}

// read runs fn on the transaction's working copy, or on the committed state.
func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if w := working(ctx); w != nil {
		fn(w)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// write runs fn inside the caller's transaction, or in one of its own.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		return fn(working(ctx))
	})
}

func (s *Store) PutProduct(p orders.Product) {
	_ = s.write(context.Background(), func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

func (s *Store) Availability(ctx context.Context, productIDs []string) ([]orders.Availability, error) {
	out := make([]orders.Availability, 0, len(productIDs))
	s.read(ctx, func(st *state) {
		for _, id := range productIDs {
			p, ok := st.products[id]
			if !ok {
				continue
			}
			out = append(out, orders.Availability{
				ProductID:         p.ID,
				Name:              p.Name,
				Type:              p.Type,
				SellerID:          p.SellerID,
				PriceCents:        p.PriceCents,
				QuantityAvailable: p.QuantityAvailable,
			})
		}
	})
	return out, nil
}

func (s *Store) Reserve(ctx context.Context, deltas []orders.InventoryDelta) error {
	return s.write(ctx, func(st *state) error { return reserve(st, deltas) })
}

func reserve(st *state, deltas []orders.InventoryDelta) error {
	need := map[string]int{}
	for _, d := range deltas {
		if d.QuantityDelta >= 0 {
			return fmt.Errorf("%w: reserve delta for %s must be negative", orders.ErrInvalidInput, d.ProductID)
		}
		need[d.ProductID] += -d.QuantityDelta
	}
	for _, d := range deltas {
		p, ok := st.products[d.ProductID]
		if !ok {
			return &orders.ProductNotFoundError{ProductID: d.ProductID}
		}
		if need[d.ProductID] > p.QuantityAvailable {
			return &orders.InsufficientInventoryError{
				ProductID: d.ProductID, Requested: need[d.ProductID], Available: p.QuantityAvailable,
			}
		}
	}
	now := time.Now().UTC()
	for _, d := range deltas {
		p := st.products[d.ProductID]
		p.QuantityAvailable += d.QuantityDelta
		p.TotalSales += d.SalesDelta
		p.TotalRevenueCents += d.RevenueDeltaCents
		p.UpdatedAt = now
		st.products[d.ProductID] = p
	}
	return nil
}

func (s *Store) Release(ctx context.Context, lines []orders.StockLine) error {
	return s.write(ctx, func(st *state) error {
		for _, l := range lines {
			if _, ok := st.products[l.ProductID]; !ok {
				return &orders.ProductNotFoundError{ProductID: l.ProductID}
			}
			if l.Quantity < 1 {
				return fmt.Errorf("%w: release quantity for %s must be positive", orders.ErrInvalidInput, l.ProductID)
			}
		}
		for _, l := range lines {
			p := st.products[l.ProductID]
			p.QuantityAvailable += l.Quantity
			st.products[l.ProductID] = p
		}
		return nil
	})
}

func (s *Store) NextSequence(ctx context.Context, period string) (int64, error) {
	var v int64
	err := s.write(ctx, func(st *state) error {
		st.counters[period]++
		v = st.counters[period]
		return nil
	})
	return v, err
}

func (s *Store) Insert(ctx context.Context, o orders.Order) error {
	if h := s.Hooks.BeforeInsert; h != nil {
		if err := h(o); err != nil {
			return err
		}
	}
	return s.write(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return fmt.Errorf("memstore: duplicate order id %s", o.ID)
		}
		for _, id := range st.orderSeq {
			if st.orders[id].OrderNumber == o.OrderNumber {
				return fmt.Errorf("memstore: duplicate order number %s", o.OrderNumber)
			}
		}
		st.orders[o.ID] = o
		st.orderSeq = append(st.orderSeq, o.ID)
		return nil
	})
}

func (s *Store) FindByID(ctx context.Context, orderID string) (orders.Order, error) {
	var (
		o  orders.Order
		ok bool
	)
	s.read(ctx, func(st *state) { o, ok = st.orders[orderID] })
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	return o, nil
}

// LockByID needs no row lock here: transactions are already serialized.
func (s *Store) LockByID(ctx context.Context, orderID string) (orders.Order, error) {
	return s.FindByID(ctx, orderID)
}

func (s *Store) AppendStatus(ctx context.Context, orderID string, entry orders.StatusEntry) error {
	return s.write(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
		}
		st.orders[orderID] = o.WithStatus(entry)
		return nil
	})
}

// List returns newest orders first.
func (s *Store) List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	var out []orders.Order
	s.read(ctx, func(st *state) {
		for i := len(st.orderSeq) - 1; i >= 0; i-- {
			o := st.orders[st.orderSeq[i]]
			if f.BuyerID != "" && o.BuyerID != f.BuyerID {
				continue
			}
			if f.SellerID != "" && o.SellerID != f.SellerID {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			out = append(out, o)
			if f.Limit > 0 && len(out) == f.Limit {
				return
			}
		}
	})
	return out, nil
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) AddPurchase(ctx context.Context, buyerID string, spentCents int64) error {
	return s.write(ctx, func(st *state) error {
		m := st.metrics[buyerID]
		m.UserID = buyerID
		m.TotalPurchases++
		m.TotalSpentCents += spentCents
		st.metrics[buyerID] = m
		return nil
	})
}

func (s *Store) AddSales(ctx context.Context, sales []orders.SellerSales) error {
	return s.write(ctx, func(st *state) error {
		for _, sl := range sales {
			m := st.metrics[sl.SellerID]
			m.UserID = sl.SellerID
			m.TotalSales += sl.Units
			m.TotalRevenueCents += sl.RevenueCents
			st.metrics[sl.SellerID] = m
		}
		return nil
	})
}

func (s *Store) Metrics(ctx context.Context, userID string) (orders.UserMetrics, error) {
	var m orders.UserMetrics
	s.read(ctx, func(st *state) { m = st.metrics[userID] })
	m.UserID = userID
	return m, nil
}

func (s *Store) Notify(_ context.Context, n orders.Notification) error {
	if h := s.Hooks.BeforeNotify; h != nil {
		if err := h(n); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.st.notifications = append(s.st.notifications, n)
	return nil
}

// Notifications returns the user's notices, oldest first.
func (s *Store) Notifications(userID string) []orders.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Notification
	for _, n := range s.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// ListNotifications returns the user's notices newest first.
func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]orders.Notification, error) {
	all := s.Notifications(userID)
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
