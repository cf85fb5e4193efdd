package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StockCache mirrors committed stock levels so the storefront can show
// live quantities without hitting the primary store. The cache is never
// authoritative: the ledger stays the truth and entries expire.
type StockCache struct {
	RDB *redis.Client
}

func (c *StockCache) Set(ctx context.Context, sku string, qty int) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyStock, sku), qty, TTLStock).Err()
}

// Adjust applies a relative delta, but only to an existing entry: a delta
// against an absent key would fabricate a level the ledger never had.
func (c *StockCache) Adjust(ctx context.Context, sku string, delta int) error {
	key := fmt.Sprintf(KeyStock, sku)
	ok, err := Exists(ctx, c.RDB, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.RDB.IncrBy(ctx, key, int64(delta)).Err()
}

// Get returns the cached level, or ok=false on a miss.
func (c *StockCache) Get(ctx context.Context, sku string) (int, bool, error) {
	n, err := c.RDB.Get(ctx, fmt.Sprintf(KeyStock, sku)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
