package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatOrderNumber(t *testing.T) {
	at := time.Date(2026, 3, 31, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	assert.Equal(t, "202603", Period(at))
	assert.Equal(t, "ORD-202603-000042", FormatOrderNumber("", at, 42))
	assert.Equal(t, "MKT-202603-1234567", FormatOrderNumber(" MKT ", at, 1234567))
}

func TestIsDomainError(t *testing.T) {
	assert.False(t, IsDomainError(nil))
	assert.True(t, IsDomainError(&InsufficientInventoryError{ProductID: "P1"}))
	assert.True(t, IsDomainError(ErrOrderNotFound))
	assert.False(t, IsDomainError(&TransactionAbortError{Op: "place", Err: &InsufficientInventoryError{}}))
	assert.ErrorIs(t, &TransactionAbortError{Op: "place", Err: ErrEmptyCart}, ErrTransactionAborted)
	assert.ErrorIs(t, &TransactionAbortError{Op: "place", Err: ErrEmptyCart}, ErrEmptyCart)
}
