package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set ORDERS_TEST_REDIS_ADDR to run these against a live server.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("ORDERS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORDERS_TEST_REDIS_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestIdempotencyLifecycle(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	idem := NewIdempotency(rdb)
	key := uuid.NewString()

	state, _, err := idem.Begin(ctx, "B1", key)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)

	state, _, err = idem.Begin(ctx, "B1", key)
	require.NoError(t, err)
	assert.Equal(t, IdemPending, state)

	state, _, err = idem.Begin(ctx, "B2", key)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state, "keys are scoped per buyer")

	require.NoError(t, idem.Complete(ctx, "B1", key, []byte(`[{"order_id":"o1"}]`)))
	state, body, err := idem.Begin(ctx, "B1", key)
	require.NoError(t, err)
	assert.Equal(t, IdemReplayed, state)
	assert.JSONEq(t, `[{"order_id":"o1"}]`, string(body))

	require.NoError(t, idem.Abandon(ctx, "B2", key))
	state, _, err = idem.Begin(ctx, "B2", key)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)
}

func TestStatusCache(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	cache := NewStatusCache(rdb)
	id := uuid.NewString()

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Put(ctx, StatusView{OrderID: id, OrderNumber: "ORD-202610-000001", Status: "shipped", UpdatedAt: at}))
	v, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shipped", v.Status)
	assert.True(t, at.Equal(v.UpdatedAt))
}

func TestDedup(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	d := NewDedup(rdb, "test-notifier")
	id := uuid.NewString()

	first, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, id))
	first, err = d.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)
}
