package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/lifecycle"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Placer interface {
	Place(ctx context.Context, req orders.Checkout) ([]orders.Summary, error)
}

type Lifecycle interface {
	UpdateStatus(ctx context.Context, cmd lifecycle.StatusUpdate) (orders.Order, error)
	Cancel(ctx context.Context, cmd lifecycle.CancelRequest) (orders.Order, error)
	Get(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error)
	List(ctx context.Context, actor orders.Actor, asSeller bool, status string, limit int) ([]orders.Order, error)
}

type AvailabilityReader interface {
	Availability(ctx context.Context, productIDs []string) ([]orders.Availability, error)
}

type MetricsReader interface {
	Metrics(ctx context.Context, userID string) (orders.UserMetrics, error)
}

type NotificationReader interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]orders.Notification, error)
}

type Idempotency interface {
	Begin(ctx context.Context, scope, key string) (redisx.IdemState, []byte, error)
	Complete(ctx context.Context, scope, key string, body []byte) error
	Abandon(ctx context.Context, scope, key string) error
}

type StatusCache interface {
	Put(ctx context.Context, v redisx.StatusView) error
	Get(ctx context.Context, orderID string) (redisx.StatusView, bool, error)
}

// OrdersHandler serves checkout, order lifecycle and per-user reads.
// Idem and Status are optional.
type OrdersHandler struct {
	Checkout      Placer
	Lifecycle     Lifecycle
	Inventory     AvailabilityReader
	Accounts      MetricsReader
	Notifications NotificationReader
	Idem          Idempotency
	Status        StatusCache
	Log           *zap.Logger
}

type checkoutReq struct {
	Items           []orders.CartLine `json:"items"`
	ShippingAddress orders.Address    `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
	PaymentDetails  map[string]string `json:"payment_details,omitempty"`
}

type statusReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type transitionResp struct {
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Status        orders.Status        `json:"status"`
	StatusHistory orders.StatusHistory `json:"status_history"`
}

type statusResp struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
	Cached      bool      `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products/availability", h.availability)
	r.Group(func(r chi.Router) {
		r.Use(RequireActor)
		r.Post("/checkout", h.checkout)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Get("/users/me/notifications", h.myNotifications)
		r.Get("/users/me/metrics", h.myMetrics)
	})
}

func (h *OrdersHandler) log() *zap.Logger { return observability.OrNop(h.Log) }

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	actor := actorFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	claimed := false
	if key != "" && h.Idem != nil {
		state, body, err := h.Idem.Begin(ctx, actor.ID, key)
		switch {
		case err != nil:
			h.log().Warn("idempotency unavailable", zap.String("key", key), zap.Error(err))
		case state == redisx.IdemReplayed:
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
			return
		case state == redisx.IdemPending:
			writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this idempotency key is in progress", Code: "idempotency_in_progress"})
			return
		default:
			claimed = true
		}
	}

	out, err := h.Checkout.Place(ctx, orders.Checkout{
		BuyerID:         actor.ID,
		Lines:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentDetails:  req.PaymentDetails,
	})
	if err != nil {
		if claimed {
			if aerr := h.Idem.Abandon(context.WithoutCancel(ctx), actor.ID, key); aerr != nil {
				h.log().Warn("idempotency abandon failed", zap.String("key", key), zap.Error(aerr))
			}
		}
		writeError(w, h.log(), err)
		return
	}

	body, err := json.Marshal(out)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if claimed {
		if err := h.Idem.Complete(context.WithoutCancel(ctx), actor.ID, key, body); err != nil {
			h.log().Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
		}
	}
	for _, s := range out {
		h.cacheStatus(ctx, redisx.StatusView{
			OrderID:     s.OrderID,
			OrderNumber: s.OrderNumber,
			BuyerID:     actor.ID,
			SellerID:    s.SellerID,
			Status:      string(s.Status),
			UpdatedAt:   time.Now().UTC(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asSeller := false
	switch strings.ToLower(q.Get("as")) {
	case "", string(orders.RoleBuyer):
	case string(orders.RoleSeller):
		asSeller = true
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "as must be buyer or seller", Code: "invalid_input"})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Lifecycle.List(ctx, actorFrom(ctx), asSeller, q.Get("status"), limit)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Get(ctx, chi.URLParam(r, "id"), actorFrom(ctx))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	actor := actorFrom(ctx)

	// 1) cache
	if h.Status != nil {
		v, ok, err := h.Status.Get(ctx, orderID)
		if err != nil {
			h.log().Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if ok {
			if _, err := orders.ResolveRole(orders.Order{BuyerID: v.BuyerID, SellerID: v.SellerID, OrderNumber: v.OrderNumber}, actor); err != nil {
				writeError(w, h.log(), err)
				return
			}
			writeJSON(w, http.StatusOK, statusResp{
				OrderID: v.OrderID, OrderNumber: v.OrderNumber, Status: v.Status, UpdatedAt: v.UpdatedAt, Cached: true,
			})
			return
		}
	}

	// 2) store
	o, err := h.Lifecycle.Get(ctx, orderID, actor)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, viewOf(o))
	writeJSON(w, http.StatusOK, statusResp{
		OrderID: o.ID, OrderNumber: o.OrderNumber, Status: string(o.Status), UpdatedAt: o.UpdatedAt,
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.UpdateStatus(ctx, lifecycle.StatusUpdate{
		OrderID: chi.URLParam(r, "id"),
		Status:  req.Status,
		Note:    req.Note,
		Actor:   actorFrom(ctx),
	})
	h.writeTransition(ctx, w, o, err)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Cancel(ctx, lifecycle.CancelRequest{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
		Actor:   actorFrom(ctx),
	})
	h.writeTransition(ctx, w, o, err)
}

func (h *OrdersHandler) writeTransition(ctx context.Context, w http.ResponseWriter, o orders.Order, err error) {
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, viewOf(o))
	writeJSON(w, http.StatusOK, transitionResp{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		StatusHistory: o.History,
	})
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ids is required", Code: "invalid_input"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rows, err := h.Inventory.Availability(ctx, ids)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if rows == nil {
		rows = []orders.Availability{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *OrdersHandler) myNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Notifications.ListNotifications(ctx, actorFrom(ctx).ID, limit)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if list == nil {
		list = []orders.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) myMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	m, err := h.Accounts.Metrics(ctx, actorFrom(ctx).ID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, v redisx.StatusView) {
	if h.Status == nil {
		return
	}
	if err := h.Status.Put(context.WithoutCancel(ctx), v); err != nil {
		h.log().Warn("status cache write failed", zap.String("order_id", v.OrderID), zap.Error(err))
	}
}

func viewOf(o orders.Order) redisx.StatusView {
	return redisx.StatusView{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		Status:      string(o.Status),
		UpdatedAt:   o.UpdatedAt,
	}
}
