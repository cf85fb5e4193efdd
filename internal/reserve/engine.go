package reserve

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/rs/zerolog"
)

// Engine turns a multi-line order request into committed stock decrements
// plus an order record. The store's conditional decrement provides all
// mutual exclusion; the engine holds no locks and may run in many
// processes at once.
type Engine struct {
	store Store
	log   zerolog.Logger
}

func NewEngine(store Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

type LineRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type PlaceOrderRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	// ExternalID is an optional idempotency hint for the transport layer.
	// The engine itself does not interpret it.
	ExternalID string        `json:"external_id,omitempty"`
	Lines      []LineRequest `json:"lines"`
}

// PlaceOrder validates the request, decrements stock for every line in
// caller order, snapshots prices, and creates the order record — all in
// one transaction when the store supports it. When the store reports
// shop.ErrTxnUnsupported the engine reruns the same sequence with
// per-record atomicity only (see placeFallback for the weaker guarantee).
//
// Every failure path returns a single *shop.OrderError.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*shop.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	tx, err := e.store.BeginTx(ctx)
	if errors.Is(err, shop.ErrTxnUnsupported) {
		return e.placeFallback(ctx, req)
	}
	if err != nil {
		return nil, &shop.OrderError{Kind: shop.KindTransactionFailed, Err: fmt.Errorf("begin tx: %w", err)}
	}

	order, err := e.reserve(ctx, tx, req)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &shop.OrderError{Kind: shop.KindTransactionFailed, Err: fmt.Errorf("commit: %w", err)}
	}
	return order, nil
}

// reserve runs steps 2–4 inside the given scope. On any error the caller
// rolls the scope back, so no partial state survives.
func (e *Engine) reserve(ctx context.Context, tx Tx, req PlaceOrderRequest) (*shop.Order, error) {
	lines, _, err := e.decrementLines(ctx, tx, req.Lines)
	if err != nil {
		return nil, err
	}

	order, err := e.createOrder(ctx, tx, req.CustomerID, lines)
	if err != nil {
		return nil, &shop.OrderError{Kind: shop.KindTransactionFailed, Err: fmt.Errorf("create order: %w", err)}
	}

	if req.CustomerID != "" {
		if err := e.store.AppendOrderRef(ctx, tx, req.CustomerID, order.ID); err != nil {
			return nil, &shop.OrderError{Kind: shop.KindTransactionFailed, Err: fmt.Errorf("append order ref: %w", err)}
		}
	}
	return order, nil
}

// placeFallback repeats the reservation sequence without a wrapping
// transaction: each decrement is its own atomic unit. A failure after
// earlier lines committed leaves those decrements in place — inventory is
// reduced with no order record. That inconsistency is flagged with a
// distinct log line and must be reconciled manually.
func (e *Engine) placeFallback(ctx context.Context, req PlaceOrderRequest) (*shop.Order, error) {
	lines, committed, err := e.decrementLines(ctx, nil, req.Lines)
	if err != nil {
		if committed > 0 {
			e.logPartial(req, committed, err)
		}
		return nil, err
	}

	order, err := e.createOrder(ctx, nil, req.CustomerID, lines)
	if err != nil {
		oerr := &shop.OrderError{Kind: shop.KindFallbackPartial, Err: fmt.Errorf("create order: %w", err)}
		e.logPartial(req, committed, oerr)
		return nil, oerr
	}

	// Best-effort linkage outside any transaction; the order itself is
	// already durable, so a failure here only costs the history entry.
	if req.CustomerID != "" {
		if err := e.store.AppendOrderRef(ctx, nil, req.CustomerID, order.ID); err != nil {
			e.log.Warn().Err(err).
				Str("order_id", order.ID).
				Str("customer_id", req.CustomerID).
				Msg("fallback: order ref not appended")
		}
	}
	return order, nil
}

// decrementLines processes lines strictly in caller order and stops at the
// first failure. It returns the snapshot lines and how many decrements had
// committed when it stopped.
func (e *Engine) decrementLines(ctx context.Context, tx Tx, reqs []LineRequest) ([]shop.OrderLine, int, error) {
	lines := make([]shop.OrderLine, 0, len(reqs))
	for i, l := range reqs {
		item, err := e.store.ConditionalDecrement(ctx, tx, l.SKU, l.Qty)
		if err != nil {
			return nil, i, decrementError(l.SKU, err)
		}
		lines = append(lines, shop.OrderLine{SKU: l.SKU, Qty: l.Qty, PriceCents: item.PriceCents})
	}
	return lines, len(reqs), nil
}

func (e *Engine) createOrder(ctx context.Context, tx Tx, customerID string, lines []shop.OrderLine) (*shop.Order, error) {
	draft := shop.Order{
		CustomerID: customerID,
		Lines:      lines,
		Status:     shop.StatusPlaced,
	}
	draft.TotalCents = draft.Total()
	return e.store.CreateOrder(ctx, tx, draft)
}

func (e *Engine) logPartial(req PlaceOrderRequest, committed int, err error) {
	var sku string
	var oerr *shop.OrderError
	if errors.As(err, &oerr) {
		sku = oerr.SKU
	}
	e.log.Error().Err(err).
		Str("customer_id", req.CustomerID).
		Str("external_id", req.ExternalID).
		Str("sku", sku).
		Int("committed_lines", committed).
		Msg("fallback partial failure: stock decremented without order record")
}

func decrementError(sku string, err error) error {
	switch {
	case errors.Is(err, shop.ErrInsufficientStock):
		return &shop.OrderError{Kind: shop.KindInsufficientStock, SKU: sku, Err: err}
	case errors.Is(err, shop.ErrSkuNotFound):
		return &shop.OrderError{Kind: shop.KindSkuNotFound, SKU: sku, Err: err}
	default:
		return &shop.OrderError{Kind: shop.KindTransactionFailed, SKU: sku, Err: fmt.Errorf("decrement: %w", err)}
	}
}

func validate(req PlaceOrderRequest) error {
	if len(req.Lines) == 0 {
		return shop.NewValidationError("order has no lines")
	}
	for i, l := range req.Lines {
		if l.SKU == "" {
			return shop.NewValidationError("line %d: empty sku", i)
		}
		if l.Qty <= 0 {
			return shop.NewValidationError("line %d: non-positive qty %d for sku %s", i, l.Qty, l.SKU)
		}
	}
	return nil
}
