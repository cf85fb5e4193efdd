package reserve

import (
	"context"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
)

// Tx is an open multi-record transaction scope on a Store. Operations that
// accept a Tx apply inside that scope; a nil Tx means the operation is its
// own atomic unit.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ledger is the stock side of a Store.
type Ledger interface {
	// ConditionalDecrement atomically applies "stock -= qty only if
	// stock >= qty" and returns the post-decrement item so its price can
	// be read in the same round trip. Returns shop.ErrInsufficientStock
	// or shop.ErrSkuNotFound without applying anything.
	ConditionalDecrement(ctx context.Context, tx Tx, sku string, qty int) (*shop.StockItem, error)

	// IncrementStock adds qty back (restock). Additive, so it is safe to
	// run concurrently with decrements without coordination.
	IncrementStock(ctx context.Context, sku string, qty int) error
}

// OrderStore persists immutable order snapshots.
type OrderStore interface {
	// CreateOrder assigns the id and timestamps and persists the draft.
	CreateOrder(ctx context.Context, tx Tx, draft shop.Order) (*shop.Order, error)
	FindOrder(ctx context.Context, id string) (*shop.Order, error)
	// FindOrdersByCustomer returns the customer's orders newest first.
	FindOrdersByCustomer(ctx context.Context, customerID string) ([]shop.Order, error)
}

// History links orders to the customer that placed them.
type History interface {
	AppendOrderRef(ctx context.Context, tx Tx, customerID, orderID string) error
}

// Store is the engine's view of the backing data store.
type Store interface {
	// BeginTx opens a multi-record transaction scope, or returns
	// shop.ErrTxnUnsupported when the deployment cannot provide one.
	BeginTx(ctx context.Context) (Tx, error)

	Ledger
	OrderStore
	History
}
