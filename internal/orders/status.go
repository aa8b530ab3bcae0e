package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// position on the forward path; alternates are absent.
var forwardRank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusConfirmed:  2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

var terminal = map[Status]bool{
	StatusDelivered: true,
	StatusCancelled: true,
	StatusRefunded:  true,
}

var cancellable = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
}

// ParseStatus accepts any recognized status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, fwd := forwardRank[s]
	return fwd || s == StatusCancelled || s == StatusRefunded
}

func (s Status) Terminal() bool { return terminal[s] }

func (s Status) Cancellable() bool { return cancellable[s] }

// CanTransition reports whether an order in from may move to to.
// Re-issuing the current non-terminal status is allowed and appends history.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	switch to {
	case StatusCancelled:
		return from.Cancellable()
	case StatusRefunded:
		return true
	}
	return forwardRank[to] >= forwardRank[from]
}

// CheckTransition is CanTransition with a typed error.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
