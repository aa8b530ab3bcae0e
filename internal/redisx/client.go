package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// claimMarker is stored under an idempotency key while the first request
// holding it is still running.
const claimMarker = "pending"

type IdemState int

const (
	IdemClaimed  IdemState = iota // caller owns the key and must run the request
	IdemPending                   // another request with this key is in flight
	IdemReplayed                  // a stored response is returned
)

// Idempotency remembers checkout responses by client supplied key.
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: TTLIdempotency}
}

// Begin claims key for scope, or returns the stored response body when the
// key was already completed.
func (i *Idempotency) Begin(ctx context.Context, scope, key string) (IdemState, []byte, error) {
	k := fmt.Sprintf(KeyIdemCheckout, scope, key)
	ok, err := i.rdb.SetNX(ctx, k, claimMarker, i.ttl).Result()
	if err != nil {
		return 0, nil, err
	}
	if ok {
		return IdemClaimed, nil, nil
	}
	body, err := i.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry the claim
		return IdemPending, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	if string(body) == claimMarker {
		return IdemPending, nil, nil
	}
	return IdemReplayed, body, nil
}

// Complete stores the response body for a claimed key.
func (i *Idempotency) Complete(ctx context.Context, scope, key string, body []byte) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, scope, key), body, i.ttl).Err()
}

// Abandon frees a claimed key so the client can retry.
func (i *Idempotency) Abandon(ctx context.Context, scope, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, scope, key)).Err()
}

// StatusView is the cached projection served by the status endpoint.
// The party ids let the handler authorize a cache hit without a store read.
type StatusView struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func (c *StatusCache) Put(ctx context.Context, v StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, v.OrderID), b, c.ttl).Err()
}

// Get reports false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusView, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return StatusView{}, false, err
	}
	return v, true, nil
}

// Dedup marks consumed event ids so redelivered events are skipped.
type Dedup struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service, ttl: TTLDedup}
}

// Claim returns true the first time id is seen.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), 1, d.ttl).Result()
}

// Forget drops the mark so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}
