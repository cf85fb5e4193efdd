package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the schema when missing. Idempotent; run at startup.
// Statements run one by one: pgx's extended protocol rejects batched SQL.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS products (
			sku          TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			category     TEXT NOT NULL DEFAULT '',
			brand        TEXT NOT NULL DEFAULT '',
			price_cents  BIGINT NOT NULL CHECK (price_cents >= 0),
			stock        INT NOT NULL CHECK (stock >= 0),
			warehouse    TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, `
		CREATE TABLE IF NOT EXISTS orders (
			id          TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL DEFAULT '',
			total_cents BIGINT NOT NULL,
			status      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, `
		CREATE TABLE IF NOT EXISTS order_lines (
			order_id    TEXT NOT NULL REFERENCES orders(id),
			line_no     INT NOT NULL,
			sku         TEXT NOT NULL,
			qty         INT NOT NULL CHECK (qty > 0),
			price_cents BIGINT NOT NULL,
			PRIMARY KEY (order_id, line_no)
		)`, `
		CREATE TABLE IF NOT EXISTS customer_orders (
			customer_id TEXT NOT NULL,
			order_id    TEXT NOT NULL REFERENCES orders(id),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (customer_id, order_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
