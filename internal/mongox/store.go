package mongox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-orders.git/internal/reserve"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements reserve.Store plus the catalog/admin operations on
// MongoDB. txnCapable is resolved once at startup (DetectTxnSupport); on
// a standalone deployment BeginTx reports shop.ErrTxnUnsupported and the
// engine runs its documented weaker fallback path.
type Store struct {
	products   *mongo.Collection
	orders     *mongo.Collection
	customers  *mongo.Collection
	client     *mongo.Client
	txnCapable bool
}

func NewStore(db *mongo.Database, txnCapable bool) *Store {
	return &Store{
		products:   db.Collection("products"),
		orders:     db.Collection("orders"),
		customers:  db.Collection("customers"),
		client:     db.Client(),
		txnCapable: txnCapable,
	}
}

type mongoTx struct {
	sess mongo.Session
	sc   mongo.SessionContext
}

func (t *mongoTx) Commit(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	return t.sess.CommitTransaction(ctx)
}

func (t *mongoTx) Rollback(ctx context.Context) error {
	defer t.sess.EndSession(ctx)
	return t.sess.AbortTransaction(ctx)
}

func (s *Store) BeginTx(ctx context.Context) (reserve.Tx, error) {
	if !s.txnCapable {
		return nil, shop.ErrTxnUnsupported
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &mongoTx{sess: sess, sc: mongo.NewSessionContext(ctx, sess)}, nil
}

// opCtx routes an operation into the transaction's session when one is
// open; a nil tx leaves the operation as its own atomic unit.
func opCtx(ctx context.Context, tx reserve.Tx) context.Context {
	if t, ok := tx.(*mongoTx); ok && t != nil {
		return t.sc
	}
	return ctx
}

type productDoc struct {
	SKU         string    `bson:"_id"`
	Name        string    `bson:"name"`
	Category    string    `bson:"category,omitempty"`
	Brand       string    `bson:"brand,omitempty"`
	PriceCents  int64     `bson:"price_cents"`
	Stock       int       `bson:"stock"`
	Warehouse   string    `bson:"warehouse,omitempty"`
	LastUpdated time.Time `bson:"last_updated"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d productDoc) item() *shop.StockItem {
	return &shop.StockItem{
		SKU:          d.SKU,
		Name:         d.Name,
		Category:     d.Category,
		Brand:        d.Brand,
		PriceCents:   d.PriceCents,
		AvailableQty: d.Stock,
		Warehouse:    d.Warehouse,
		LastUpdated:  d.LastUpdated,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type orderLineDoc struct {
	SKU        string `bson:"sku"`
	Qty        int    `bson:"qty"`
	PriceCents int64  `bson:"price_cents"`
}

type orderDoc struct {
	ID         string         `bson:"_id"`
	CustomerID string         `bson:"customer_id,omitempty"`
	Lines      []orderLineDoc `bson:"lines"`
	TotalCents int64          `bson:"total_cents"`
	Status     string         `bson:"status"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func (d orderDoc) order() shop.Order {
	o := shop.Order{
		ID:         d.ID,
		CustomerID: d.CustomerID,
		TotalCents: d.TotalCents,
		Status:     shop.Status(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	o.Lines = make([]shop.OrderLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		o.Lines = append(o.Lines, shop.OrderLine{SKU: l.SKU, Qty: l.Qty, PriceCents: l.PriceCents})
	}
	return o
}

// ConditionalDecrement is one findOneAndUpdate whose filter carries the
// "stock >= qty" precondition, returning the post-decrement document so
// the price snapshot comes from the same round trip.
func (s *Store) ConditionalDecrement(ctx context.Context, tx reserve.Tx, sku string, qty int) (*shop.StockItem, error) {
	ctx = opCtx(ctx, tx)
	now := time.Now().UTC()

	var doc productDoc
	err := s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": sku, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"last_updated": now, "updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.item(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("decrement %s: %w", sku, err)
	}

	n, err := s.products.CountDocuments(ctx, bson.M{"_id": sku})
	if err != nil {
		return nil, fmt.Errorf("decrement %s: %w", sku, err)
	}
	if n == 0 {
		return nil, shop.ErrSkuNotFound
	}
	return nil, shop.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, sku string, qty int) error {
	now := time.Now().UTC()
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": sku},
		bson.M{
			"$inc": bson.M{"stock": qty},
			"$set": bson.M{"last_updated": now, "updated_at": now},
		})
	if err != nil {
		return fmt.Errorf("increment %s: %w", sku, err)
	}
	if res.MatchedCount == 0 {
		return shop.ErrSkuNotFound
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, tx reserve.Tx, draft shop.Order) (*shop.Order, error) {
	ctx = opCtx(ctx, tx)
	now := time.Now().UTC()

	doc := orderDoc{
		ID:         uuid.NewString(),
		CustomerID: draft.CustomerID,
		TotalCents: draft.TotalCents,
		Status:     string(draft.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	doc.Lines = make([]orderLineDoc, 0, len(draft.Lines))
	for _, l := range draft.Lines {
		doc.Lines = append(doc.Lines, orderLineDoc{SKU: l.SKU, Qty: l.Qty, PriceCents: l.PriceCents})
	}

	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	out := doc.order()
	return &out, nil
}

func (s *Store) FindOrder(ctx context.Context, id string) (*shop.Order, error) {
	var doc orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shop.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	out := doc.order()
	return &out, nil
}

func (s *Store) FindOrdersByCustomer(ctx context.Context, customerID string) ([]shop.Order, error) {
	cursor, err := s.orders.Find(ctx,
		bson.M{"customer_id": customerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	out := make([]shop.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.order())
	}
	return out, nil
}

func (s *Store) AppendOrderRef(ctx context.Context, tx reserve.Tx, customerID, orderID string) error {
	ctx = opCtx(ctx, tx)
	_, err := s.customers.UpdateOne(ctx,
		bson.M{"_id": customerID},
		bson.M{"$addToSet": bson.M{"orders": orderID}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("append order ref: %w", err)
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to shop.Status) error {
	res, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.orders.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return shop.ErrOrderNotFound
		}
		return shop.ErrStatusConflict
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, sku string) (*shop.StockItem, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"_id": sku}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shop.ErrSkuNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return doc.item(), nil
}

func (s *Store) ListProducts(ctx context.Context, f shop.ProductFilter) ([]shop.StockItem, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	cursor, err := s.products.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(f.Offset)))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]shop.StockItem, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.item())
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, item shop.StockItem) (*shop.StockItem, error) {
	now := time.Now().UTC()
	var doc productDoc
	err := s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": item.SKU},
		bson.M{
			"$set": bson.M{
				"name":         item.Name,
				"category":     item.Category,
				"brand":        item.Brand,
				"price_cents":  item.PriceCents,
				"stock":        item.AvailableQty,
				"warehouse":    item.Warehouse,
				"last_updated": now,
				"updated_at":   now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("upsert product: %w", err)
	}
	return doc.item(), nil
}

func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": sku})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return shop.ErrSkuNotFound
	}
	return nil
}
