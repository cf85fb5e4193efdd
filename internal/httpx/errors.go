package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	SKU   string `json:"sku,omitempty"`
	// Retryable hints that the same request may be resubmitted safely.
	Retryable bool `json:"retryable,omitempty"`
	// Reconcile flags a fallback-mode partial failure: stock was reduced
	// without a matching order record.
	Reconcile bool `json:"reconcile_required,omitempty"`
}

// writeOrderError maps the engine's error taxonomy onto response codes:
// business outcomes and bad input are 4xx, infrastructure failures 5xx.
func writeOrderError(w http.ResponseWriter, err error) {
	var oerr *shop.OrderError
	if !errors.As(err, &oerr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	body := errorBody{
		Error:     oerr.Error(),
		Kind:      string(oerr.Kind),
		SKU:       oerr.SKU,
		Retryable: oerr.Retryable(),
	}
	switch oerr.Kind {
	case shop.KindValidation, shop.KindInsufficientStock, shop.KindSkuNotFound:
		writeJSON(w, http.StatusBadRequest, body)
	case shop.KindFallbackPartial:
		body.Reconcile = true
		writeJSON(w, http.StatusInternalServerError, body)
	default: // KindTransactionFailed and anything unclassified
		writeJSON(w, http.StatusInternalServerError, body)
	}
}
