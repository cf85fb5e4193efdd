package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/go-chi/chi/v5"
)

// Catalog is the read surface of the product store.
type Catalog interface {
	GetProduct(ctx context.Context, sku string) (*shop.StockItem, error)
	ListProducts(ctx context.Context, f shop.ProductFilter) ([]shop.StockItem, error)
}

type ProductsHandler struct {
	Catalog Catalog
	Stock   *redisx.StockCache // live stock fast path; nil disables it
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{sku}", h.getProduct)
	r.Get("/products/{sku}/stock", h.getStock)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, err := h.Catalog.ListProducts(ctx, shop.ProductFilter{
		Category: q.Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if items == nil {
		items = []shop.StockItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	item, err := h.Catalog.GetProduct(ctx, chi.URLParam(r, "sku"))
	if errors.Is(err, shop.ErrSkuNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "product not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type stockResp struct {
	SKU          string `json:"sku"`
	AvailableQty int    `json:"available_qty"`
	Cached       bool   `json:"cached"`
}

// getStock serves the live quantity from the Redis mirror when present,
// falling back to the store of record and warming the mirror.
func (h *ProductsHandler) getStock(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Stock != nil {
		if qty, ok, err := h.Stock.Get(ctx, sku); err == nil && ok {
			writeJSON(w, http.StatusOK, stockResp{SKU: sku, AvailableQty: qty, Cached: true})
			return
		}
	}

	item, err := h.Catalog.GetProduct(ctx, sku)
	if errors.Is(err, shop.ErrSkuNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "product not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if h.Stock != nil {
		_ = h.Stock.Set(ctx, sku, item.AvailableQty)
	}
	writeJSON(w, http.StatusOK, stockResp{SKU: sku, AvailableQty: item.AvailableQty})
}
