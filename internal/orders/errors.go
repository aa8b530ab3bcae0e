package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("orders: invalid input")
	ErrEmptyCart             = errors.New("orders: cart is empty")
	ErrInvalidLine           = errors.New("orders: invalid cart line")
	ErrProductNotFound       = errors.New("orders: product not found")
	ErrInsufficientInventory = errors.New("orders: insufficient inventory")
	ErrTransactionAborted    = errors.New("orders: placement failed, retry")
	ErrPermissionDenied      = errors.New("orders: permission denied")
	ErrInvalidStatus         = errors.New("orders: invalid status")
	ErrInvalidTransition     = errors.New("orders: invalid status transition")
	ErrOrderNotFound         = errors.New("orders: order not found")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("orders: product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientInventoryError names the product that cannot cover the request
// and how much of it is left.
type InsufficientInventoryError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("orders: insufficient inventory for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// TransactionAbortError reports a rolled back unit of work. Nothing it
// touched is visible afterwards, so the call is safe to retry.
type TransactionAbortError struct {
	Op  string
	Err error
}

func (e *TransactionAbortError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("orders: transaction aborted: %v", e.Err)
	}
	return fmt.Sprintf("orders: %s: transaction aborted: %v", e.Op, e.Err)
}

func (e *TransactionAbortError) Unwrap() error { return e.Err }

func (e *TransactionAbortError) Is(target error) bool { return target == ErrTransactionAborted }

var domainErrors = []error{
	ErrInvalidInput,
	ErrEmptyCart,
	ErrInvalidLine,
	ErrProductNotFound,
	ErrInsufficientInventory,
	ErrPermissionDenied,
	ErrInvalidStatus,
	ErrInvalidTransition,
	ErrOrderNotFound,
}

// IsDomainError reports whether err is a caller-facing validation or
// authorization failure rather than an infrastructure fault.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	var abort *TransactionAbortError
	if errors.As(err, &abort) {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
