package orders

import "time"

type Product struct {
	ID                string
	Name              string
	Type              string
	SellerID          string
	PriceCents        int64
	QuantityAvailable int
	TotalSales        int
	TotalRevenueCents int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Availability is one row of the inventory snapshot read before placement.
type Availability struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Type              string `json:"type,omitempty"`
	SellerID          string `json:"seller_id"`
	PriceCents        int64  `json:"price_cents"`
	QuantityAvailable int    `json:"quantity_available"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Checkout is a buyer's cart submission; BuyerID comes from the authenticated caller.
type Checkout struct {
	BuyerID         string
	Lines           []CartLine
	ShippingAddress Address
	PaymentMethod   string
	PaymentDetails  map[string]string
}

// Item is a purchased line; price, name and type are captured at purchase time.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

func (i Item) LineTotal() int64 { return i.PriceCents * int64(i.Quantity) }

type Order struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"order_number"`
	BuyerID         string            `json:"buyer_id"`
	SellerID        string            `json:"seller_id"`
	Items           []Item            `json:"items"`
	SubTotalCents   int64             `json:"sub_total_cents"`
	TotalCents      int64             `json:"total_cents"`
	ShippingAddress Address           `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
	PaymentDetails  map[string]string `json:"payment_details,omitempty"`
	Status          Status            `json:"status"`
	History         StatusHistory     `json:"status_history"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// WithStatus returns a copy of the order with entry appended to its history.
func (o Order) WithStatus(entry StatusEntry) Order {
	o.History = o.History.Append(entry)
	o.Status = entry.Status
	o.UpdatedAt = entry.ChangedAt
	return o
}

// StockLines lists the quantities held by the order, one line per product.
func (o Order) StockLines() []StockLine {
	out := make([]StockLine, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return MergeStockLines(out)
}

func (o Order) Summary() Summary {
	return Summary{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		SellerID:    o.SellerID,
		TotalCents:  o.TotalCents,
		Status:      o.Status,
	}
}

type Summary struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	SellerID    string `json:"seller_id"`
	TotalCents  int64  `json:"total_cents"`
	Status      Status `json:"status"`
}

// InventoryDelta is applied to one product when an order is placed.
// QuantityDelta is negative; SalesDelta and RevenueDeltaCents are positive.
type InventoryDelta struct {
	ProductID         string
	QuantityDelta     int
	SalesDelta        int
	RevenueDeltaCents int64
}

type StockLine struct {
	ProductID string
	Quantity  int
}

// MergeStockLines sums quantities per product, keeping first-seen order.
func MergeStockLines(lines []StockLine) []StockLine {
	idx := make(map[string]int, len(lines))
	out := make([]StockLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

type SellerSales struct {
	SellerID     string
	Units        int
	RevenueCents int64
}

type UserMetrics struct {
	UserID            string `json:"user_id"`
	TotalPurchases    int    `json:"total_purchases"`
	TotalSpentCents   int64  `json:"total_spent_cents"`
	TotalSales        int    `json:"total_sales"`
	TotalRevenueCents int64  `json:"total_revenue_cents"`
}

const NotificationTypeOrder = "order"

type Notification struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListFilter struct {
	BuyerID  string
	SellerID string
	Status   Status
	Limit    int
}
