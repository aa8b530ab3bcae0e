package orders

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() []Availability {
	return []Availability{
		{ProductID: "P1", Name: "Mug", SellerID: "S1", PriceCents: 1000, QuantityAvailable: 5},
		{ProductID: "P2", Name: "Poster", SellerID: "S2", PriceCents: 500, QuantityAvailable: 1},
		{ProductID: "P3", Name: "Pin", SellerID: "S1", PriceCents: 250, QuantityAvailable: 10},
	}
}

func TestSplitGroupsBySeller(t *testing.T) {
	plan, err := Split([]CartLine{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P3", Quantity: 4},
	}, snapshot())
	require.NoError(t, err)

	require.Len(t, plan.Drafts, 2)
	assert.Equal(t, "S1", plan.Drafts[0].SellerID)
	assert.Equal(t, int64(3000), plan.Drafts[0].TotalCents)
	assert.Equal(t, plan.Drafts[0].SubTotalCents, plan.Drafts[0].TotalCents)
	assert.Len(t, plan.Drafts[0].Items, 2)
	assert.Equal(t, 6, plan.Drafts[0].Units())

	assert.Equal(t, "S2", plan.Drafts[1].SellerID)
	assert.Equal(t, int64(500), plan.Drafts[1].TotalCents)

	assert.Equal(t, int64(3500), plan.GrandTotalCents)
	assert.Equal(t, []InventoryDelta{
		{ProductID: "P1", QuantityDelta: -2, SalesDelta: 2, RevenueDeltaCents: 2000},
		{ProductID: "P2", QuantityDelta: -1, SalesDelta: 1, RevenueDeltaCents: 500},
		{ProductID: "P3", QuantityDelta: -4, SalesDelta: 4, RevenueDeltaCents: 1000},
	}, plan.Deltas)

	assert.Equal(t, []SellerSales{
		{SellerID: "S1", Units: 6, RevenueCents: 3000},
		{SellerID: "S2", Units: 1, RevenueCents: 500},
	}, plan.SellerSales())
}

func TestSplitCapturesProductDetails(t *testing.T) {
	plan, err := Split([]CartLine{{ProductID: "P1", Quantity: 1}}, snapshot())
	require.NoError(t, err)
	assert.Equal(t, Item{ProductID: "P1", Name: "Mug", Quantity: 1, PriceCents: 1000}, plan.Drafts[0].Items[0])
}

func TestSplitMergesDuplicateLines(t *testing.T) {
	plan, err := Split([]CartLine{
		{ProductID: "P1", Quantity: 2},
		{ProductID: " P1 ", Quantity: 3},
	}, snapshot())
	require.NoError(t, err)
	require.Len(t, plan.Drafts, 1)
	require.Len(t, plan.Drafts[0].Items, 1)
	assert.Equal(t, 5, plan.Drafts[0].Items[0].Quantity)
	assert.Equal(t, -5, plan.Deltas[0].QuantityDelta)
}

func TestSplitRejectsMergedOverdraw(t *testing.T) {
	_, err := Split([]CartLine{
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P2", Quantity: 1},
	}, snapshot())

	var short *InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "P2", short.ProductID)
	assert.Equal(t, 2, short.Requested)
	assert.Equal(t, 1, short.Available)
}

func TestSplitValidation(t *testing.T) {
	tests := []struct {
		name  string
		lines []CartLine
		want  error
	}{
		{name: "empty cart", lines: nil, want: ErrEmptyCart},
		{name: "missing product id", lines: []CartLine{{ProductID: " ", Quantity: 1}}, want: ErrInvalidLine},
		{name: "zero quantity", lines: []CartLine{{ProductID: "P1", Quantity: 0}}, want: ErrInvalidLine},
		{name: "negative quantity", lines: []CartLine{{ProductID: "P1", Quantity: -2}}, want: ErrInvalidLine},
		{name: "unknown product", lines: []CartLine{{ProductID: "nope", Quantity: 1}}, want: ErrProductNotFound},
		{name: "over stock", lines: []CartLine{{ProductID: "P1", Quantity: 6}}, want: ErrInsufficientInventory},
		{name: "merged quantity overflows", lines: []CartLine{{ProductID: "P1", Quantity: math.MaxInt}, {ProductID: "P1", Quantity: 2}}, want: ErrInvalidLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.lines, snapshot())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsDomainError(err))
		})
	}
}

func TestSplitReportsMissingProductBeforeStock(t *testing.T) {
	_, err := Split([]CartLine{
		{ProductID: "P1", Quantity: 99},
		{ProductID: "ghost", Quantity: 1},
	}, snapshot())

	var missing *ProductNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ghost", missing.ProductID)
}

func TestProductIDs(t *testing.T) {
	ids := ProductIDs([]CartLine{{ProductID: "b"}, {ProductID: "a"}, {ProductID: "b"}, {ProductID: ""}})
	assert.Equal(t, []string{"b", "a"}, ids)
}
