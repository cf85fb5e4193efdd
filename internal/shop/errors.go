package shop

import (
	"errors"
	"fmt"
)

// Store-level sentinels. Adapters return these from single operations;
// the engine wraps them into an *OrderError for callers.
var (
	// ErrTxnUnsupported is returned by Store.BeginTx when the backing
	// store cannot provide multi-record atomicity (e.g. standalone
	// MongoDB). It is a capability signal, not a failure.
	ErrTxnUnsupported = errors.New("store does not support multi-record transactions")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSkuNotFound       = errors.New("sku not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStatusConflict    = errors.New("order status conflict")
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindSkuNotFound       ErrorKind = "SKU_NOT_FOUND"
	KindTransactionFailed ErrorKind = "TRANSACTION_FAILED"
	// KindFallbackPartial marks a fallback-mode order whose decrements
	// committed but whose order record was never written. The store is in
	// a flagged-inconsistent state and needs manual reconciliation.
	KindFallbackPartial ErrorKind = "FALLBACK_PARTIAL_FAILURE"
)

// OrderError is the single terminal error type of PlaceOrder. SKU is set
// when the failure names an offending line.
type OrderError struct {
	Kind ErrorKind
	SKU  string
	Err  error
}

func (e *OrderError) Error() string {
	switch {
	case e.SKU != "" && e.Err != nil:
		return fmt.Sprintf("%s (sku=%s): %v", e.Kind, e.SKU, e.Err)
	case e.SKU != "":
		return fmt.Sprintf("%s (sku=%s)", e.Kind, e.SKU)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *OrderError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may safely retry the request.
func (e *OrderError) Retryable() bool { return e.Kind == KindTransactionFailed }

func NewValidationError(format string, args ...any) *OrderError {
	return &OrderError{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}
