package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to specific responses; anything else is an
// infrastructure fault and collapses to a generic message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		short   *orders.InsufficientInventoryError
		missing *orders.ProductNotFoundError
	)
	switch {
	case errors.Is(err, orders.ErrTransactionAborted):
		log.Warn("transaction aborted", zap.Error(err))
		body := errorBody{Error: "placement failed, retry", Code: "transaction_aborted"}
		if errors.As(err, &short) {
			body.ProductID, body.Available = short.ProductID, &short.Available
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     err.Error(),
			Code:      "insufficient_inventory",
			ProductID: short.ProductID,
			Available: &short.Available,
			Requested: &short.Requested,
		})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "product_not_found", ProductID: missing.ProductID})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "order_not_found"})
	case errors.Is(err, orders.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "permission_denied"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "empty_cart"})
	case errors.Is(err, orders.ErrInvalidLine):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_line"})
	case errors.Is(err, orders.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_status"})
	case errors.Is(err, orders.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_input"})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "try again"})
	}
}
