package orders

import "context"

// UnitOfWork runs fn inside one transaction; repositories called with the
// context passed to fn join it. A nested call joins the outer transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Inventory is the ledger over Product.quantityAvailable. Every mutation of
// stock goes through Reserve or Release.
type Inventory interface {
	Availability(ctx context.Context, productIDs []string) ([]Availability, error)
	// Reserve applies all deltas or none; it fails with
	// *InsufficientInventoryError or *ProductNotFoundError on a shortfall.
	Reserve(ctx context.Context, deltas []InventoryDelta) error
	Release(ctx context.Context, lines []StockLine) error
}

// Store persists order aggregates.
type Store interface {
	// NextSequence returns the next running count for period, unique even
	// under concurrent callers.
	NextSequence(ctx context.Context, period string) (int64, error)
	Insert(ctx context.Context, order Order) error
	FindByID(ctx context.Context, orderID string) (Order, error)
	// LockByID loads the order and holds it until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, orderID string) (Order, error)
	AppendStatus(ctx context.Context, orderID string, entry StatusEntry) error
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// Accounts holds per-user purchase and sales counters.
type Accounts interface {
	AddPurchase(ctx context.Context, buyerID string, spentCents int64) error
	AddSales(ctx context.Context, sales []SellerSales) error
	Metrics(ctx context.Context, userID string) (UserMetrics, error)
}

// Notifier hands a notice to the notification log. Callers treat errors as
// non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
