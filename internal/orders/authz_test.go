package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRole(t *testing.T) {
	o := Order{OrderNumber: "ORD-202610-000001", BuyerID: "B1", SellerID: "S1"}

	role, err := ResolveRole(o, Actor{ID: "B1"})
	require.NoError(t, err)
	assert.Equal(t, RoleBuyer, role)

	role, err = ResolveRole(o, Actor{ID: "S1"})
	require.NoError(t, err)
	assert.Equal(t, RoleSeller, role)

	role, err = ResolveRole(o, Actor{ID: "ops", Role: "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ResolveRole(o, Actor{ID: "stranger"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = ResolveRole(o, Actor{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestResolveRoleSelfPurchaseActsAsSeller(t *testing.T) {
	o := Order{BuyerID: "U1", SellerID: "U1"}
	role, err := ResolveRole(o, Actor{ID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, RoleSeller, role)
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize(RoleBuyer, StatusPending, StatusCancelled))
	assert.ErrorIs(t, Authorize(RoleBuyer, StatusProcessing, StatusCancelled), ErrPermissionDenied)
	assert.ErrorIs(t, Authorize(RoleBuyer, StatusPending, StatusShipped), ErrPermissionDenied)
	assert.ErrorIs(t, Authorize(RoleBuyer, StatusShipped, StatusRefunded), ErrPermissionDenied)

	assert.NoError(t, Authorize(RoleSeller, StatusPending, StatusShipped))
	assert.NoError(t, Authorize(RoleSeller, StatusProcessing, StatusCancelled))
	assert.NoError(t, Authorize(RoleAdmin, StatusShipped, StatusRefunded))

	assert.ErrorIs(t, Authorize(Role("courier"), StatusPending, StatusShipped), ErrPermissionDenied)
}
