package mongox

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"go.mongodb.org/mongo-driver/mongo"
)

func getStore(t *testing.T) (*Store, *mongo.Client) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		t.Skipf("Mongo not available: %v", err)
	}
	capable, err := DetectTxnSupport(ctx, client)
	if err != nil {
		t.Fatalf("detect txn support: %v", err)
	}
	return NewStore(client.Database("shop_test"), capable), client
}

func seed(t *testing.T, s *Store, sku string, stock int, priceCents int64) {
	t.Helper()
	if _, err := s.UpsertProduct(context.Background(), shop.StockItem{
		SKU: sku, Name: "test " + sku, PriceCents: priceCents, AvailableQty: stock,
	}); err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
}

func TestMongoConditionalDecrement(t *testing.T) {
	s, client := getStore(t)
	defer client.Disconnect(context.Background())
	ctx := context.Background()

	seed(t, s, "mg-dec-item", 10, 900)

	item, err := s.ConditionalDecrement(ctx, nil, "mg-dec-item", 4)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if item.AvailableQty != 6 {
		t.Errorf("expected stock 6, got %d", item.AvailableQty)
	}
	if item.PriceCents != 900 {
		t.Errorf("expected price 900, got %d", item.PriceCents)
	}

	_, err = s.ConditionalDecrement(ctx, nil, "mg-dec-item", 7)
	if !errors.Is(err, shop.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	_, err = s.ConditionalDecrement(ctx, nil, "mg-missing", 1)
	if !errors.Is(err, shop.ErrSkuNotFound) {
		t.Errorf("expected ErrSkuNotFound, got %v", err)
	}
}

func TestMongoDecrementConcurrent(t *testing.T) {
	s, client := getStore(t)
	defer client.Disconnect(context.Background())
	ctx := context.Background()

	initial := 20
	requests := 50
	seed(t, s, "mg-conc-item", initial, 100)

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConditionalDecrement(ctx, nil, "mg-conc-item", 1); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != int32(initial) {
		t.Errorf("expected %d successes, got %d", initial, success.Load())
	}
	item, err := s.GetProduct(ctx, "mg-conc-item")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.AvailableQty != 0 {
		t.Errorf("expected stock 0, got %d", item.AvailableQty)
	}
}

// On a standalone server BeginTx must report the typed capability error,
// never a raw server error.
func TestMongoBeginTxCapability(t *testing.T) {
	s, client := getStore(t)
	defer client.Disconnect(context.Background())
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	if errors.Is(err, shop.ErrTxnUnsupported) {
		t.Log("standalone deployment: capability error surfaced as typed sentinel")
		return
	}
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	// Replica set: a decrement inside an aborted scope must not stick.
	seed(t, s, "mg-tx-item", 10, 100)
	if _, err := s.ConditionalDecrement(ctx, tx, "mg-tx-item", 3); err != nil {
		t.Fatalf("decrement in tx: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	item, err := s.GetProduct(ctx, "mg-tx-item")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.AvailableQty != 10 {
		t.Errorf("expected stock back at 10 after abort, got %d", item.AvailableQty)
	}
}

func TestMongoOrderLifecycle(t *testing.T) {
	s, client := getStore(t)
	defer client.Disconnect(context.Background())
	ctx := context.Background()

	draft := shop.Order{
		CustomerID: "mg-cust-1",
		Lines:      []shop.OrderLine{{SKU: "x", Qty: 2, PriceCents: 300}},
		Status:     shop.StatusPlaced,
	}
	draft.TotalCents = draft.Total()

	created, err := s.CreateOrder(ctx, nil, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AppendOrderRef(ctx, nil, "mg-cust-1", created.ID); err != nil {
		t.Fatalf("append ref: %v", err)
	}

	got, err := s.FindOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.TotalCents != 600 || len(got.Lines) != 1 {
		t.Errorf("unexpected order read-back: %+v", got)
	}

	if err := s.UpdateOrderStatus(ctx, created.ID, shop.StatusPlaced, shop.StatusProcessing); err != nil {
		t.Fatalf("status: %v", err)
	}
	err = s.UpdateOrderStatus(ctx, created.ID, shop.StatusPlaced, shop.StatusCancelled)
	if !errors.Is(err, shop.ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
}
