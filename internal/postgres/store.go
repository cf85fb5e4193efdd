package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders.git/internal/reserve"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements reserve.Store plus the catalog/admin operations on
// Postgres. Transactions are always supported here; the fallback path in
// the engine only ever triggers for stores that report otherwise.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (s *Store) BeginTx(ctx context.Context) (reserve.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// querier is satisfied by both the pool and an open pgx.Tx, so every
// operation can run inside or outside a transaction scope.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) q(tx reserve.Tx) querier {
	if t, ok := tx.(*pgTx); ok && t != nil {
		return t.tx
	}
	return s.DB
}

const productColumns = `sku, name, category, brand, price_cents, stock, warehouse, last_updated, created_at, updated_at`

func scanProduct(row pgx.Row) (*shop.StockItem, error) {
	var it shop.StockItem
	err := row.Scan(&it.SKU, &it.Name, &it.Category, &it.Brand, &it.PriceCents,
		&it.AvailableQty, &it.Warehouse, &it.LastUpdated, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ConditionalDecrement is a single guarded UPDATE: the WHERE clause is the
// "stock >= qty" precondition, so concurrent callers cannot oversell.
func (s *Store) ConditionalDecrement(ctx context.Context, tx reserve.Tx, sku string, qty int) (*shop.StockItem, error) {
	q := s.q(tx)
	row := q.QueryRow(ctx, `
		UPDATE products
		   SET stock = stock - $2, last_updated = now(), updated_at = now()
		 WHERE sku = $1 AND stock >= $2
		RETURNING `+productColumns, sku, qty)

	item, err := scanProduct(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement %s: %w", sku, err)
	}

	// No row matched: tell a missing SKU apart from a shortage.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1)`, sku).Scan(&exists); err != nil {
		return nil, fmt.Errorf("decrement %s: %w", sku, err)
	}
	if !exists {
		return nil, shop.ErrSkuNotFound
	}
	return nil, shop.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, sku string, qty int) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		   SET stock = stock + $2, last_updated = now(), updated_at = now()
		 WHERE sku = $1`, sku, qty)
	if err != nil {
		return fmt.Errorf("increment %s: %w", sku, err)
	}
	if ct.RowsAffected() == 0 {
		return shop.ErrSkuNotFound
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, tx reserve.Tx, draft shop.Order) (*shop.Order, error) {
	q := s.q(tx)
	draft.ID = uuid.NewString()

	row := q.QueryRow(ctx, `
		INSERT INTO orders (id, customer_id, total_cents, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		draft.ID, draft.CustomerID, draft.TotalCents, draft.Status)
	if err := row.Scan(&draft.CreatedAt, &draft.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, l := range draft.Lines {
		if _, err := q.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, sku, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			draft.ID, i, l.SKU, l.Qty, l.PriceCents); err != nil {
			return nil, fmt.Errorf("insert line %d: %w", i, err)
		}
	}
	return &draft, nil
}

func (s *Store) FindOrder(ctx context.Context, id string) (*shop.Order, error) {
	var o shop.Order
	err := s.DB.QueryRow(ctx, `
		SELECT id, customer_id, total_cents, status, created_at, updated_at
		  FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shop.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if o.Lines, err = s.orderLines(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) FindOrdersByCustomer(ctx context.Context, customerID string) ([]shop.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, customer_id, total_cents, status, created_at, updated_at
		  FROM orders WHERE customer_id = $1
		 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer rows.Close()

	var out []shop.Order
	for rows.Next() {
		var o shop.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = s.orderLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]shop.OrderLine, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT sku, qty, price_cents FROM order_lines
		 WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order lines: %w", err)
	}
	defer rows.Close()

	var lines []shop.OrderLine
	for rows.Next() {
		var l shop.OrderLine
		if err := rows.Scan(&l.SKU, &l.Qty, &l.PriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) AppendOrderRef(ctx context.Context, tx reserve.Tx, customerID, orderID string) error {
	_, err := s.q(tx).Exec(ctx, `
		INSERT INTO customer_orders (customer_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (customer_id, order_id) DO NOTHING`, customerID, orderID)
	if err != nil {
		return fmt.Errorf("append order ref: %w", err)
	}
	return nil
}

// UpdateOrderStatus applies a guarded transition: the WHERE clause checks
// the expected current status so racing admins cannot skip states. Lines
// and total are never touched.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to shop.Status) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shop.ErrOrderNotFound
		}
		return shop.ErrStatusConflict
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, sku string) (*shop.StockItem, error) {
	item, err := scanProduct(s.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shop.ErrSkuNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return item, nil
}

func (s *Store) ListProducts(ctx context.Context, f shop.ProductFilter) ([]shop.StockItem, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+productColumns+` FROM products
		 WHERE ($1 = '' OR category = $1)
		 ORDER BY sku
		 LIMIT $2 OFFSET $3`, f.Category, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []shop.StockItem
	for rows.Next() {
		item, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (s *Store) UpsertProduct(ctx context.Context, item shop.StockItem) (*shop.StockItem, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO products (sku, name, category, brand, price_cents, stock, warehouse)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			price_cents = EXCLUDED.price_cents,
			stock = EXCLUDED.stock,
			warehouse = EXCLUDED.warehouse,
			last_updated = now(),
			updated_at = now()
		RETURNING `+productColumns,
		item.SKU, item.Name, item.Category, item.Brand, item.PriceCents, item.AvailableQty, item.Warehouse)
	out, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("upsert product: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return shop.ErrSkuNotFound
	}
	return nil
}
