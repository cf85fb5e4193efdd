package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
	"github.com/ariefcatur/go-shop-orders.git/internal/reserve"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// OrderPlacer is the engine surface the handler consumes.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req reserve.PlaceOrderRequest) (*shop.Order, error)
}

// OrderReader serves the read side of the order store.
type OrderReader interface {
	FindOrder(ctx context.Context, id string) (*shop.Order, error)
	FindOrdersByCustomer(ctx context.Context, customerID string) ([]shop.Order, error)
}

// Publisher is the slice of the kafka producer the handlers need.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Engine      OrderPlacer
	Orders      OrderReader
	OrderEvents Publisher     // shop.order.placed; nil disables publishing
	StockEvents Publisher     // shop.stock.changed; nil disables publishing
	Redis       *redis.Client // idempotency fast path; nil disables it
	Service     string
}

type PlaceOrderResp struct {
	Order      *shop.Order `json:"order"`
	Idempotent bool        `json:"idempotent,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders", h.listOrders)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req reserve.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Kind: string(shop.KindValidation)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency shortcut; the store stays the truth.
	if h.Redis != nil && req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderPlace, req.ExternalID)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if order, err := h.Orders.FindOrder(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, PlaceOrderResp{Order: order, Idempotent: true})
				return
			}
		}
	}

	order, err := h.Engine.PlaceOrder(ctx, req)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	if h.Redis != nil && req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderPlace, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, order.ID, redisx.TTLIdempotency).Err()
	}

	h.publishPlaced(r, order)
	writeJSON(w, http.StatusCreated, PlaceOrderResp{Order: order})
}

func (h *OrdersHandler) publishPlaced(r *http.Request, order *shop.Order) {
	trace := r.Header.Get("X-Request-Id")

	if h.OrderEvents != nil {
		ev := shop.Envelope{
			EventID:       uuid.NewString(),
			EventType:     shop.EventOrderPlaced,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       trace,
			CorrelationID: order.ID,
			Payload: kafkax.MustMarshal(shop.OrderPlacedPayload{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				Lines:      order.Lines,
				TotalCents: order.TotalCents,
			}),
		}
		h.OrderEvents.Publish(shop.OrderPartitionKey(order.ID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(shop.EventOrderPlaced)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	if h.StockEvents != nil {
		for _, l := range order.Lines {
			ev := shop.Envelope{
				EventID:       uuid.NewString(),
				EventType:     shop.EventStockChanged,
				EventVersion:  1,
				OccurredAt:    time.Now().UTC(),
				Producer:      h.Service,
				TraceID:       trace,
				CorrelationID: order.ID,
				Payload:       kafkax.MustMarshal(shop.StockChangedPayload{SKU: l.SKU, Delta: -l.Qty}),
			}
			h.StockEvents.Publish(shop.StockPartitionKey(l.SKU), kafkax.MustMarshal(ev),
				kafkago.Header{Key: "x-event-type", Value: []byte(shop.EventStockChanged)},
				kafkago.Header{Key: "x-event-version", Value: []byte("1")},
			)
		}
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Orders.FindOrder(ctx, orderID)
	if errors.Is(err, shop.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing customer query param"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Orders.FindOrdersByCustomer(ctx, customerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if orders == nil {
		orders = []shop.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}
