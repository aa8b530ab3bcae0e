package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/lifecycle")

const defaultCancelNote = "Order cancelled"

type Deps struct {
	UnitOfWork orders.UnitOfWork
	Inventory  orders.Inventory
	Orders     orders.Store
	Notifier   orders.Notifier
	Clock      func() time.Time
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Controller moves orders through their status lifecycle.
type Controller struct {
	uow       orders.UnitOfWork
	inventory orders.Inventory
	orders    orders.Store
	notifier  orders.Notifier
	clock     func() time.Time
	log       *zap.Logger
	metrics   *observability.Metrics
}

type StatusUpdate struct {
	OrderID string
	Status  string
	Note    string
	Actor   orders.Actor
}

type CancelRequest struct {
	OrderID string
	Reason  string
	Actor   orders.Actor
}

func NewController(deps Deps) (*Controller, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("lifecycle: unit of work is required")
	case deps.Inventory == nil:
		return nil, errors.New("lifecycle: inventory is required")
	case deps.Orders == nil:
		return nil, errors.New("lifecycle: order store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Controller{
		uow:       deps.UnitOfWork,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		notifier:  deps.Notifier,
		clock:     func() time.Time { return clock().UTC() },
		log:       observability.OrNop(deps.Logger),
		metrics:   deps.Metrics,
	}, nil
}

// UpdateStatus moves the order to cmd.Status. The order and the actor's role
// are checked before the requested status is parsed.
func (c *Controller) UpdateStatus(ctx context.Context, cmd StatusUpdate) (orders.Order, error) {
	return c.transition(ctx, strings.TrimSpace(cmd.OrderID), cmd.Status, strings.TrimSpace(cmd.Note), cmd.Actor)
}

// Cancel moves the order to cancelled and puts its items back in stock.
func (c *Controller) Cancel(ctx context.Context, cmd CancelRequest) (orders.Order, error) {
	note := strings.TrimSpace(cmd.Reason)
	if note == "" {
		note = defaultCancelNote
	}
	return c.transition(ctx, strings.TrimSpace(cmd.OrderID), string(orders.StatusCancelled), note, cmd.Actor)
}

// Get returns the order when actor is its buyer, its seller or an admin.
func (c *Controller) Get(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return orders.Order{}, fmt.Errorf("%w: order id is required", orders.ErrInvalidInput)
	}
	o, err := c.orders.FindByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if _, err := orders.ResolveRole(o, actor); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// List returns the actor's orders, as buyer unless asSeller is set.
func (c *Controller) List(ctx context.Context, actor orders.Actor, asSeller bool, status string, limit int) ([]orders.Order, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return nil, fmt.Errorf("%w: actor id is required", orders.ErrInvalidInput)
	}
	f := orders.ListFilter{Limit: limit}
	if asSeller {
		f.SellerID = actor.ID
	} else {
		f.BuyerID = actor.ID
	}
	if status != "" {
		st, err := orders.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	return c.orders.List(ctx, f)
}

func (c *Controller) transition(ctx context.Context, orderID, requested, note string, actor orders.Actor) (_ orders.Order, err error) {
	ctx, span := tracer.Start(ctx, "lifecycle.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.requested_status", requested),
		attribute.String("actor.id", actor.ID),
	)
	var target orders.Status
	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case orders.IsDomainError(err):
			result = "rejected"
		default:
			result = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		label := string(target)
		if label == "" {
			label = "invalid"
		}
		c.metrics.ObserveTransition(label, result)
	}()

	if orderID == "" {
		return orders.Order{}, fmt.Errorf("%w: order id is required", orders.ErrInvalidInput)
	}

	var (
		updated orders.Order
		role    orders.Role
		from    orders.Status
	)
	err = c.uow.RunInTx(ctx, func(ctx context.Context) error {
		o, err := c.orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		role, err = orders.ResolveRole(o, actor)
		if err != nil {
			return err
		}
		if target, err = orders.ParseStatus(requested); err != nil {
			return err
		}
		if err := orders.Authorize(role, o.Status, target); err != nil {
			return err
		}
		if err := orders.CheckTransition(o.Status, target); err != nil {
			return err
		}

		entry := orders.StatusEntry{
			Status:    target,
			ChangedAt: c.clock(),
			Note:      note,
			ActorID:   actor.ID,
		}
		if err := c.orders.AppendStatus(ctx, o.ID, entry); err != nil {
			return fmt.Errorf("append status: %w", err)
		}
		if target == orders.StatusCancelled {
			if err := c.inventory.Release(ctx, o.StockLines()); err != nil {
				return fmt.Errorf("restore inventory: %w", err)
			}
		}
		from = o.Status
		updated = o.WithStatus(entry)
		return nil
	})
	if err != nil {
		if orders.IsDomainError(err) {
			return orders.Order{}, err
		}
		c.log.Error("status update aborted",
			zap.String("order_id", orderID),
			zap.String("target", string(target)),
			zap.Error(err))
		return orders.Order{}, &orders.TransactionAbortError{Op: "update status", Err: err}
	}

	c.log.Info("order status changed",
		zap.String("order_id", updated.ID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor_role", string(role)))

	c.notifyCounterparty(context.WithoutCancel(ctx), updated, role)
	return updated, nil
}

func (c *Controller) notifyCounterparty(ctx context.Context, o orders.Order, role orders.Role) {
	if c.notifier == nil {
		return
	}
	var recipients []string
	switch role {
	case orders.RoleBuyer:
		recipients = []string{o.SellerID}
	case orders.RoleSeller:
		recipients = []string{o.BuyerID}
	case orders.RoleAdmin:
		recipients = []string{o.BuyerID, o.SellerID}
	}
	msg := fmt.Sprintf("Order %s status updated to %s", o.OrderNumber, o.Status)
	if role == orders.RoleBuyer && o.Status == orders.StatusCancelled {
		msg = fmt.Sprintf("Order %s was cancelled by the buyer", o.OrderNumber)
	}
	for _, userID := range recipients {
		n := orders.Notification{
			UserID:    userID,
			Message:   msg,
			Type:      orders.NotificationTypeOrder,
			Link:      "/orders/" + o.ID,
			CreatedAt: c.clock(),
		}
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.metrics.NotifyFailed("lifecycle")
			c.log.Warn("notification failed",
				zap.String("user_id", userID),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}
}
