package orders

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHistoryAppendDoesNotAlias(t *testing.T) {
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	base := NewStatusHistory(StatusEntry{Status: StatusPending, ChangedAt: at, Note: NotePlaced})

	a := base.Append(StatusEntry{Status: StatusProcessing, ChangedAt: at.Add(time.Hour)})
	b := base.Append(StatusEntry{Status: StatusCancelled, ChangedAt: at.Add(time.Hour)})

	assert.Equal(t, 1, base.Len())
	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, last.Status)
	last, _ = b.Last()
	assert.Equal(t, StatusCancelled, last.Status)

	entries := a.Entries()
	entries[0].Note = "edited"
	first := a.Entries()[0]
	assert.Equal(t, NotePlaced, first.Note)
}

func TestStatusHistoryJSON(t *testing.T) {
	var empty StatusHistory
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	h := NewStatusHistory(StatusEntry{Status: StatusPending, ChangedAt: at, Note: NotePlaced})
	b, err = json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"status":"pending","date":"2026-10-01T09:00:00Z","note":"Order placed successfully"}]`, string(b))

	var back StatusHistory
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, h.Entries(), back.Entries())
}

func TestOrderWithStatus(t *testing.T) {
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	o := Order{Status: StatusPending, History: NewStatusHistory(StatusEntry{Status: StatusPending, ChangedAt: at})}

	next := o.WithStatus(StatusEntry{Status: StatusShipped, ChangedAt: at.Add(time.Hour)})
	assert.Equal(t, StatusShipped, next.Status)
	assert.Equal(t, at.Add(time.Hour), next.UpdatedAt)
	assert.Equal(t, 2, next.History.Len())
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 1, o.History.Len())
}

func TestOrderStockLinesMerges(t *testing.T) {
	o := Order{Items: []Item{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P1", Quantity: 1},
	}}
	assert.Equal(t, []StockLine{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}}, o.StockLines())
}
