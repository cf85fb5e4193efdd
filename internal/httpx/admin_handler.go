package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// AdminStore covers the write operations of the admin surface. Restock is
// additive only, so it can run concurrently with order placement without
// coordination; status updates never touch lines or totals.
type AdminStore interface {
	UpsertProduct(ctx context.Context, item shop.StockItem) (*shop.StockItem, error)
	DeleteProduct(ctx context.Context, sku string) error
	IncrementStock(ctx context.Context, sku string, qty int) error
	GetProduct(ctx context.Context, sku string) (*shop.StockItem, error)
	FindOrder(ctx context.Context, id string) (*shop.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to shop.Status) error
}

type AdminHandler struct {
	Store       AdminStore
	StockEvents Publisher // shop.stock.changed; nil disables publishing
	Service     string
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Route("/admin", func(r chi.Router) {
		r.Put("/products/{sku}", h.upsertProduct)
		r.Delete("/products/{sku}", h.deleteProduct)
		r.Post("/products/{sku}/restock", h.restock)
		r.Post("/orders/{id}/status", h.updateStatus)
	})
}

func (h *AdminHandler) upsertProduct(w http.ResponseWriter, r *http.Request) {
	var item shop.StockItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	item.SKU = chi.URLParam(r, "sku")
	if item.Name == "" || item.PriceCents <= 0 || item.AvailableQty < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name, positive price_cents and non-negative available_qty required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	saved, err := h.Store.UpsertProduct(ctx, item)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	h.publishStock(r, saved.SKU, 0, &saved.AvailableQty)
	writeJSON(w, http.StatusOK, saved)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Store.DeleteProduct(ctx, chi.URLParam(r, "sku"))
	if errors.Is(err, shop.ErrSkuNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "product not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restockReq struct {
	Qty int `json:"qty"`
}

func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "positive qty required"})
		return
	}
	sku := chi.URLParam(r, "sku")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Store.IncrementStock(ctx, sku, req.Qty)
	if errors.Is(err, shop.ErrSkuNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "product not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	h.publishStock(r, sku, req.Qty, nil)
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "restocked": req.Qty})
}

type statusReq struct {
	Status shop.Status `json:"status"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !shop.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "valid status required"})
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Store.FindOrder(ctx, id)
	if errors.Is(err, shop.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if !shop.CanTransition(order.Status, req.Status) {
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid transition from " + string(order.Status) + " to " + string(req.Status)})
		return
	}

	err = h.Store.UpdateOrderStatus(ctx, id, order.Status, req.Status)
	if errors.Is(err, shop.ErrStatusConflict) {
		// Lost the race against another transition.
		writeJSON(w, http.StatusConflict, errorBody{Error: "order status changed concurrently"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func (h *AdminHandler) publishStock(r *http.Request, sku string, delta int, absolute *int) {
	if h.StockEvents == nil {
		return
	}
	ev := shop.Envelope{
		EventID:      uuid.NewString(),
		EventType:    shop.EventStockChanged,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.Service,
		TraceID:      r.Header.Get("X-Request-Id"),
		Payload:      kafkax.MustMarshal(shop.StockChangedPayload{SKU: sku, Delta: delta, AvailableQty: absolute}),
	}
	h.StockEvents.Publish(shop.StockPartitionKey(sku), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(shop.EventStockChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
