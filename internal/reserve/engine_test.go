package reserve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/rs/zerolog"
)

// memStore implements Store in memory. A transaction holds the store
// mutex from BeginTx until Commit/Rollback, which serializes scopes the
// way a real store's transaction isolation would. Non-transactional
// operations (nil Tx) lock per call, so each is its own atomic unit.
type memStore struct {
	mu         sync.Mutex
	txnCapable bool

	items   map[string]*shop.StockItem
	orders  map[string]shop.Order
	history map[string][]string
	seq     int

	failCreate  bool
	failHistory bool
}

func newMemStore(txnCapable bool, stock map[string]int) *memStore {
	s := &memStore{
		txnCapable: txnCapable,
		items:      make(map[string]*shop.StockItem),
		orders:     make(map[string]shop.Order),
		history:    make(map[string][]string),
	}
	for sku, qty := range stock {
		s.items[sku] = &shop.StockItem{SKU: sku, Name: sku, PriceCents: 1000, AvailableQty: qty}
	}
	return s
}

type memTx struct {
	s    *memStore
	undo []func()
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (s *memStore) BeginTx(ctx context.Context) (Tx, error) {
	if !s.txnCapable {
		return nil, shop.ErrTxnUnsupported
	}
	s.mu.Lock()
	return &memTx{s: s}, nil
}

func (s *memStore) ConditionalDecrement(ctx context.Context, tx Tx, sku string, qty int) (*shop.StockItem, error) {
	mt, _ := tx.(*memTx)
	if mt == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	item, ok := s.items[sku]
	if !ok {
		return nil, shop.ErrSkuNotFound
	}
	if item.AvailableQty < qty {
		return nil, shop.ErrInsufficientStock
	}
	item.AvailableQty -= qty
	if mt != nil {
		mt.undo = append(mt.undo, func() { item.AvailableQty += qty })
	}
	cp := *item
	return &cp, nil
}

func (s *memStore) IncrementStock(ctx context.Context, sku string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[sku]
	if !ok {
		return shop.ErrSkuNotFound
	}
	item.AvailableQty += qty
	return nil
}

func (s *memStore) CreateOrder(ctx context.Context, tx Tx, draft shop.Order) (*shop.Order, error) {
	mt, _ := tx.(*memTx)
	if mt == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if s.failCreate {
		return nil, errors.New("create failed")
	}
	s.seq++
	draft.ID = fmt.Sprintf("order-%d", s.seq)
	s.orders[draft.ID] = draft
	if mt != nil {
		id := draft.ID
		mt.undo = append(mt.undo, func() { delete(s.orders, id); s.seq-- })
	}
	cp := draft
	return &cp, nil
}

func (s *memStore) FindOrder(ctx context.Context, id string) (*shop.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, shop.ErrOrderNotFound
	}
	return &o, nil
}

func (s *memStore) FindOrdersByCustomer(ctx context.Context, customerID string) ([]shop.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shop.Order
	for i := len(s.history[customerID]) - 1; i >= 0; i-- {
		if o, ok := s.orders[s.history[customerID][i]]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) AppendOrderRef(ctx context.Context, tx Tx, customerID, orderID string) error {
	mt, _ := tx.(*memTx)
	if mt == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if s.failHistory {
		return errors.New("history failed")
	}
	s.history[customerID] = append(s.history[customerID], orderID)
	return nil
}

func (s *memStore) stock(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[sku].AvailableQty
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func newEngine(s *memStore) *Engine {
	return NewEngine(s, zerolog.Nop())
}

func orderKind(t *testing.T, err error) shop.ErrorKind {
	t.Helper()
	var oerr *shop.OrderError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected *shop.OrderError, got %v", err)
	}
	return oerr.Kind
}

func TestPlaceOrder_Success(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 10})
	eng := newEngine(store)

	order, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 5}},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if store.stock("SKU-1") != 5 {
		t.Errorf("expected stock 5, got %d", store.stock("SKU-1"))
	}
	if order.TotalCents != 5*1000 {
		t.Errorf("expected total 5000, got %d", order.TotalCents)
	}
	if order.Status != shop.StatusPlaced {
		t.Errorf("expected status placed, got %s", order.Status)
	}
	if order.ID == "" {
		t.Error("expected assigned order id")
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 3})
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 5}},
	})
	if kind := orderKind(t, err); kind != shop.KindInsufficientStock {
		t.Errorf("expected INSUFFICIENT_STOCK, got %s", kind)
	}
	var oerr *shop.OrderError
	errors.As(err, &oerr)
	if oerr.SKU != "SKU-1" {
		t.Errorf("expected offending sku SKU-1, got %q", oerr.SKU)
	}
	if store.stock("SKU-1") != 3 {
		t.Errorf("expected stock untouched at 3, got %d", store.stock("SKU-1"))
	}
	if store.orderCount() != 0 {
		t.Errorf("expected no order created, got %d", store.orderCount())
	}
}

func TestPlaceOrder_SkuNotFound(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 3})
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "NOPE", Qty: 1}},
	})
	if kind := orderKind(t, err); kind != shop.KindSkuNotFound {
		t.Errorf("expected SKU_NOT_FOUND, got %s", kind)
	}
}

// Transactional path: a later line failing rolls back earlier decrements.
func TestPlaceOrder_MultiLineRollback(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 10, "SKU-2": 0})
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 2}, {SKU: "SKU-2", Qty: 1}},
	})
	var oerr *shop.OrderError
	if !errors.As(err, &oerr) || oerr.Kind != shop.KindInsufficientStock || oerr.SKU != "SKU-2" {
		t.Fatalf("expected INSUFFICIENT_STOCK on SKU-2, got %v", err)
	}
	if store.stock("SKU-1") != 10 {
		t.Errorf("expected SKU-1 rolled back to 10, got %d", store.stock("SKU-1"))
	}
	if store.orderCount() != 0 {
		t.Errorf("expected no order created, got %d", store.orderCount())
	}
}

// Fallback path: earlier decrements stay committed when a later line
// fails; no order is created.
func TestPlaceOrder_FallbackPartialDecrement(t *testing.T) {
	store := newMemStore(false, map[string]int{"SKU-1": 10, "SKU-2": 0})
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 2}, {SKU: "SKU-2", Qty: 1}},
	})
	var oerr *shop.OrderError
	if !errors.As(err, &oerr) || oerr.Kind != shop.KindInsufficientStock || oerr.SKU != "SKU-2" {
		t.Fatalf("expected INSUFFICIENT_STOCK on SKU-2, got %v", err)
	}
	if store.stock("SKU-1") != 8 {
		t.Errorf("expected SKU-1 left at 8 in fallback mode, got %d", store.stock("SKU-1"))
	}
	if store.orderCount() != 0 {
		t.Errorf("expected no order created, got %d", store.orderCount())
	}
}

func TestPlaceOrder_FallbackSuccess(t *testing.T) {
	store := newMemStore(false, map[string]int{"SKU-1": 10})
	eng := newEngine(store)

	order, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		Lines:      []LineRequest{{SKU: "SKU-1", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if store.stock("SKU-1") != 6 {
		t.Errorf("expected stock 6, got %d", store.stock("SKU-1"))
	}
	if len(store.history["cust-1"]) != 1 || store.history["cust-1"][0] != order.ID {
		t.Errorf("expected order ref appended for cust-1, got %v", store.history["cust-1"])
	}
}

func TestPlaceOrder_FallbackCreateFailure(t *testing.T) {
	store := newMemStore(false, map[string]int{"SKU-1": 10})
	store.failCreate = true
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 2}},
	})
	if kind := orderKind(t, err); kind != shop.KindFallbackPartial {
		t.Errorf("expected FALLBACK_PARTIAL_FAILURE, got %s", kind)
	}
	// The decrement stays committed: that is the flagged inconsistency.
	if store.stock("SKU-1") != 8 {
		t.Errorf("expected stock 8, got %d", store.stock("SKU-1"))
	}
}

// History append failure in fallback mode must not fail the order.
func TestPlaceOrder_FallbackHistoryBestEffort(t *testing.T) {
	store := newMemStore(false, map[string]int{"SKU-1": 10})
	store.failHistory = true
	eng := newEngine(store)

	order, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		Lines:      []LineRequest{{SKU: "SKU-1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("expected success despite history failure, got %v", err)
	}
	if order == nil || order.ID == "" {
		t.Fatal("expected committed order")
	}
}

// History append failure inside the transaction aborts everything.
func TestPlaceOrder_HistoryFailureAborts(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 10})
	store.failHistory = true
	eng := newEngine(store)

	_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		Lines:      []LineRequest{{SKU: "SKU-1", Qty: 1}},
	})
	if kind := orderKind(t, err); kind != shop.KindTransactionFailed {
		t.Errorf("expected TRANSACTION_FAILED, got %s", kind)
	}
	if store.stock("SKU-1") != 10 {
		t.Errorf("expected stock rolled back to 10, got %d", store.stock("SKU-1"))
	}
	if store.orderCount() != 0 {
		t.Errorf("expected no order, got %d", store.orderCount())
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	eng := newEngine(newMemStore(true, nil))

	cases := []struct {
		name string
		req  PlaceOrderRequest
	}{
		{"empty lines", PlaceOrderRequest{}},
		{"zero qty", PlaceOrderRequest{Lines: []LineRequest{{SKU: "SKU-1", Qty: 0}}}},
		{"negative qty", PlaceOrderRequest{Lines: []LineRequest{{SKU: "SKU-1", Qty: -2}}}},
		{"empty sku", PlaceOrderRequest{Lines: []LineRequest{{SKU: "", Qty: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.PlaceOrder(context.Background(), tc.req)
			if kind := orderKind(t, err); kind != shop.KindValidation {
				t.Errorf("expected VALIDATION, got %s", kind)
			}
		})
	}
}

// Changing the ledger price after an order commits must not change the
// snapshot on the order line.
func TestPlaceOrder_PriceSnapshotImmutable(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 10})
	eng := newEngine(store)

	order, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		Lines: []LineRequest{{SKU: "SKU-1", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	store.mu.Lock()
	store.items["SKU-1"].PriceCents = 9999
	store.mu.Unlock()

	got, err := store.FindOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Lines[0].PriceCents != 1000 {
		t.Errorf("expected snapshot price 1000, got %d", got.Lines[0].PriceCents)
	}
	if got.TotalCents != got.Total() {
		t.Errorf("total %d does not match line sum %d", got.TotalCents, got.Total())
	}
}

// Two concurrent qty-6 requests against stock 10: exactly one wins.
func TestPlaceOrder_ConcurrentContention(t *testing.T) {
	for _, txn := range []bool{true, false} {
		name := "transactional"
		if !txn {
			name = "fallback"
		}
		t.Run(name, func(t *testing.T) {
			store := newMemStore(txn, map[string]int{"SKU-1": 10})
			eng := newEngine(store)

			var success, insufficient atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
						Lines: []LineRequest{{SKU: "SKU-1", Qty: 6}},
					})
					switch {
					case err == nil:
						success.Add(1)
					default:
						var oerr *shop.OrderError
						if errors.As(err, &oerr) && oerr.Kind == shop.KindInsufficientStock {
							insufficient.Add(1)
						}
					}
				}()
			}
			wg.Wait()

			if success.Load() != 1 || insufficient.Load() != 1 {
				t.Errorf("expected 1 success and 1 insufficient, got %d/%d",
					success.Load(), insufficient.Load())
			}
			if store.stock("SKU-1") != 4 {
				t.Errorf("expected stock 4, got %d", store.stock("SKU-1"))
			}
		})
	}
}

// No oversell: committed decrements never exceed initial stock.
func TestPlaceOrder_NoOversell(t *testing.T) {
	initial := 20
	requests := 50

	store := newMemStore(true, map[string]int{"SKU-1": initial})
	eng := newEngine(store)

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
				Lines: []LineRequest{{SKU: "SKU-1", Qty: 1}},
			}); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != int32(initial) {
		t.Errorf("expected %d successes, got %d", initial, success.Load())
	}
	if store.stock("SKU-1") != 0 {
		t.Errorf("expected stock 0, got %d", store.stock("SKU-1"))
	}
	if store.orderCount() != initial {
		t.Errorf("expected %d orders, got %d", initial, store.orderCount())
	}
}

func TestPlaceOrder_MultiLineTotals(t *testing.T) {
	store := newMemStore(true, map[string]int{"SKU-1": 10, "SKU-2": 10})
	store.items["SKU-2"].PriceCents = 250
	eng := newEngine(store)

	order, err := eng.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-9",
		Lines:      []LineRequest{{SKU: "SKU-1", Qty: 3}, {SKU: "SKU-2", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	want := int64(3*1000 + 2*250)
	if order.TotalCents != want {
		t.Errorf("expected total %d, got %d", want, order.TotalCents)
	}

	hist, err := store.FindOrdersByCustomer(context.Background(), "cust-9")
	if err != nil || len(hist) != 1 || hist[0].ID != order.ID {
		t.Errorf("expected customer history with one order, got %v (%v)", hist, err)
	}
}
