package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/checkout")

// Deps bundles collaborators required to construct the placement service.
type Deps struct {
	UnitOfWork   orders.UnitOfWork
	Inventory    orders.Inventory
	Orders       orders.Store
	Accounts     orders.Accounts
	Notifier     orders.Notifier
	NumberPrefix string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Service turns one checkout into one order per seller.
type Service struct {
	uow       orders.UnitOfWork
	inventory orders.Inventory
	orders    orders.Store
	accounts  orders.Accounts
	notifier  orders.Notifier
	prefix    string
	clock     func() time.Time
	newID     func() string
	log       *zap.Logger
	metrics   *observability.Metrics
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("checkout: unit of work is required")
	case deps.Inventory == nil:
		return nil, errors.New("checkout: inventory is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout: order store is required")
	case deps.Accounts == nil:
		return nil, errors.New("checkout: accounts are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		uow:       deps.UnitOfWork,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		accounts:  deps.Accounts,
		notifier:  deps.Notifier,
		prefix:    deps.NumberPrefix,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		log:       observability.OrNop(deps.Logger),
		metrics:   deps.Metrics,
	}, nil
}

// Place validates the cart, then in one transaction reserves stock, inserts
// one order per seller and bumps buyer and seller metrics. Validation errors
// come back before anything is written; a failed transaction comes back as
// *orders.TransactionAbortError with nothing applied. Notifications go out
// after commit and never fail the placement.
func (s *Service) Place(ctx context.Context, req orders.Checkout) (_ []orders.Summary, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Place")
	defer span.End()

	start := time.Now()
	placed := 0
	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case errors.Is(err, orders.ErrTransactionAborted):
			result = "aborted"
		case orders.IsDomainError(err):
			result = "rejected"
		default:
			result = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		s.metrics.ObservePlacement(result, placed, time.Since(start))
	}()

	buyerID := strings.TrimSpace(req.BuyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", orders.ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return nil, orders.ErrEmptyCart
	}
	span.SetAttributes(attribute.String("buyer.id", buyerID), attribute.Int("cart.lines", len(req.Lines)))

	snapshot, err := s.inventory.Availability(ctx, orders.ProductIDs(req.Lines))
	if err != nil {
		return nil, fmt.Errorf("checkout: read availability: %w", err)
	}
	plan, err := orders.Split(req.Lines, snapshot)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var created []orders.Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		created = created[:0]
		if err := s.inventory.Reserve(ctx, plan.Deltas); err != nil {
			return err
		}
		for _, d := range plan.Drafts {
			seq, err := s.orders.NextSequence(ctx, orders.Period(now))
			if err != nil {
				return fmt.Errorf("next order number: %w", err)
			}
			o := s.newOrder(buyerID, orders.FormatOrderNumber(s.prefix, now, seq), d, req, now)
			if err := s.orders.Insert(ctx, o); err != nil {
				return fmt.Errorf("insert order %s: %w", o.OrderNumber, err)
			}
			created = append(created, o)
		}
		if err := s.accounts.AddPurchase(ctx, buyerID, plan.GrandTotalCents); err != nil {
			return fmt.Errorf("buyer metrics: %w", err)
		}
		if err := s.accounts.AddSales(ctx, plan.SellerSales()); err != nil {
			return fmt.Errorf("seller metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("placement aborted",
			zap.String("buyer_id", buyerID),
			zap.Int("sellers", len(plan.Drafts)),
			zap.Error(err))
		return nil, &orders.TransactionAbortError{Op: "place", Err: err}
	}
	placed = len(created)

	s.notifyPlaced(context.WithoutCancel(ctx), buyerID, created)

	out := make([]orders.Summary, 0, len(created))
	for _, o := range created {
		out = append(out, o.Summary())
	}
	s.log.Info("checkout placed",
		zap.String("buyer_id", buyerID),
		zap.Int("orders", len(out)),
		zap.Int64("grand_total_cents", plan.GrandTotalCents))
	return out, nil
}

func (s *Service) newOrder(buyerID, number string, d orders.Draft, req orders.Checkout, now time.Time) orders.Order {
	o := orders.Order{
		ID:              s.newID(),
		OrderNumber:     number,
		BuyerID:         buyerID,
		SellerID:        d.SellerID,
		Items:           d.Items,
		SubTotalCents:   d.SubTotalCents,
		TotalCents:      d.TotalCents,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentDetails:  req.PaymentDetails,
		CreatedAt:       now,
	}
	return o.WithStatus(orders.StatusEntry{
		Status:    orders.StatusPending,
		ChangedAt: now,
		Note:      orders.NotePlaced,
		ActorID:   buyerID,
	})
}

func (s *Service) notifyPlaced(ctx context.Context, buyerID string, created []orders.Order) {
	if s.notifier == nil || len(created) == 0 {
		return
	}
	numbers := make([]string, 0, len(created))
	for _, o := range created {
		numbers = append(numbers, o.OrderNumber)
	}
	msg := fmt.Sprintf("Your order has been placed: %s", strings.Join(numbers, ", "))
	if len(created) > 1 {
		msg = fmt.Sprintf("Your checkout was split into %d orders: %s", len(created), strings.Join(numbers, ", "))
	}
	s.notify(ctx, orders.Notification{
		UserID:  buyerID,
		Message: msg,
		Type:    orders.NotificationTypeOrder,
		Link:    "/orders",
	})
	for _, o := range created {
		s.notify(ctx, orders.Notification{
			UserID:  o.SellerID,
			Message: fmt.Sprintf("New order %s received: %d item(s), total %s", o.OrderNumber, len(o.Items), formatCents(o.TotalCents)),
			Type:    orders.NotificationTypeOrder,
			Link:    "/orders/" + o.ID,
		})
	}
}

func (s *Service) notify(ctx context.Context, n orders.Notification) {
	n.CreatedAt = s.clock()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.NotifyFailed("checkout")
		s.log.Warn("notification failed",
			zap.String("user_id", n.UserID),
			zap.String("message", n.Message),
			zap.Error(err))
	}
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
