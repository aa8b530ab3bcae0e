package orders

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated caller. Role carries the caller's global role
// ("admin" grants administrative privilege); order-level roles are resolved
// against the order itself.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return strings.EqualFold(strings.TrimSpace(a.Role), string(RoleAdmin)) }

// ResolveRole decides in which capacity actor acts on order.
func ResolveRole(order Order, actor Actor) (Role, error) {
	switch {
	case actor.IsAdmin():
		return RoleAdmin, nil
	case actor.ID != "" && actor.ID == order.SellerID:
		return RoleSeller, nil
	case actor.ID != "" && actor.ID == order.BuyerID:
		return RoleBuyer, nil
	}
	return "", fmt.Errorf("%w: %s is not a party to order %s", ErrPermissionDenied, actor.ID, order.OrderNumber)
}

type transitionKey struct {
	from Status
	to   Status
}

// rolePolicy maps a role to the (from, to) pairs it may request.
// A nil table means any pair; the status machine still applies afterwards.
var rolePolicy = map[Role]map[transitionKey]bool{
	RoleBuyer: {
		{from: StatusPending, to: StatusCancelled}: true,
	},
	RoleSeller: nil,
	RoleAdmin:  nil,
}

// Authorize evaluates the role table for a requested transition.
func Authorize(role Role, from, to Status) error {
	allowed, known := rolePolicy[role]
	if !known {
		return fmt.Errorf("%w: unknown role %q", ErrPermissionDenied, role)
	}
	if allowed == nil || allowed[transitionKey{from: from, to: to}] {
		return nil
	}
	return fmt.Errorf("%w: %s may not move order from %s to %s", ErrPermissionDenied, role, from, to)
}
