// Package stockfeed keeps the Redis stock mirror in sync with committed
// ledger changes by consuming shop.stock.changed events.
package stockfeed

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Cache is the slice of redisx.StockCache the feed needs.
type Cache interface {
	Set(ctx context.Context, sku string, qty int) error
	Adjust(ctx context.Context, sku string, delta int) error
}

type Service struct {
	Cache       Cache
	Redis       *redis.Client // event dedup; nil disables dedup
	ServiceName string
	Log         zerolog.Logger
}

// HandleStockChanged is installed as the consumer handler.
func (s *Service) HandleStockChanged(ctx context.Context, m kafkago.Message) error {
	var env shop.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != shop.EventStockChanged {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
		seen, _ := redisx.Exists(ctx, s.Redis, dkey)
		if seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[shop.StockChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	return s.apply(ctx, p)
}

func (s *Service) apply(ctx context.Context, p shop.StockChangedPayload) error {
	if p.SKU == "" {
		s.Log.Warn().Msg("stock change without sku, dropped")
		return nil
	}
	// An absolute level wins over a delta (catalog upserts publish both
	// shapes of truth; deltas come from decrements and restocks).
	if p.AvailableQty != nil {
		if err := s.Cache.Set(ctx, p.SKU, *p.AvailableQty); err != nil {
			return fmt.Errorf("set stock %s: %w", p.SKU, err)
		}
		return nil
	}
	if p.Delta == 0 {
		return nil
	}
	if err := s.Cache.Adjust(ctx, p.SKU, p.Delta); err != nil {
		return fmt.Errorf("adjust stock %s: %w", p.SKU, err)
	}
	return nil
}
