package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
)

type stubCatalog struct {
	items map[string]*shop.StockItem
}

func (s *stubCatalog) GetProduct(ctx context.Context, sku string) (*shop.StockItem, error) {
	if item, ok := s.items[sku]; ok {
		return item, nil
	}
	return nil, shop.ErrSkuNotFound
}

func (s *stubCatalog) ListProducts(ctx context.Context, f shop.ProductFilter) ([]shop.StockItem, error) {
	var out []shop.StockItem
	for _, it := range s.items {
		if f.Category == "" || it.Category == f.Category {
			out = append(out, *it)
		}
	}
	return out, nil
}

func serveProducts(c Catalog, method, target string) *httptest.ResponseRecorder {
	r := NewRouter()
	h := &ProductsHandler{Catalog: c}
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestListProducts(t *testing.T) {
	cat := &stubCatalog{items: map[string]*shop.StockItem{
		"a": {SKU: "a", Category: "tools"},
		"b": {SKU: "b", Category: "toys"},
	}}

	w := serveProducts(cat, http.MethodGet, "/products?category=tools")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []shop.StockItem
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 1 || got[0].SKU != "a" {
		t.Errorf("expected only category=tools, got %+v", got)
	}
}

func TestGetProduct(t *testing.T) {
	cat := &stubCatalog{items: map[string]*shop.StockItem{
		"a": {SKU: "a", PriceCents: 900, AvailableQty: 4},
	}}

	w := serveProducts(cat, http.MethodGet, "/products/a")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got shop.StockItem
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.PriceCents != 900 {
		t.Errorf("unexpected product: %+v", got)
	}

	w = serveProducts(cat, http.MethodGet, "/products/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetStock_FallsBackToStore(t *testing.T) {
	cat := &stubCatalog{items: map[string]*shop.StockItem{
		"a": {SKU: "a", AvailableQty: 17},
	}}

	w := serveProducts(cat, http.MethodGet, "/products/a/stock")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got stockResp
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.AvailableQty != 17 || got.Cached {
		t.Errorf("expected uncached 17, got %+v", got)
	}
}
