package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
	_ "github.com/lib/pq"
)

// PostgresArchive stores orders in PostgreSQL. The order document is kept
// as JSON; id and enriched are lifted into columns for querying.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS orders (
//	    order_id   TEXT PRIMARY KEY,
//	    enriched   BOOLEAN NOT NULL,
//	    payload    JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// Save upserts the order document.
func (a *PostgresArchive) Save(ctx context.Context, o order.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, enriched, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (order_id)
		 DO UPDATE SET enriched = EXCLUDED.enriched, payload = EXCLUDED.payload, updated_at = NOW()`,
		o.ID, o.Enriched, payload,
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns the archived order, or (nil, nil) when absent.
func (a *PostgresArchive) Get(ctx context.Context, orderID string) (*order.Order, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx,
		"SELECT payload FROM orders WHERE order_id = $1", orderID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	var o order.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", orderID, err)
	}
	return &o, nil
}

// List returns all archived orders, oldest first.
func (a *PostgresArchive) List(ctx context.Context) ([]order.Order, error) {
	return a.list(ctx, "SELECT payload FROM orders ORDER BY created_at ASC")
}

// ListEnriched returns only fully enriched orders, oldest first.
func (a *PostgresArchive) ListEnriched(ctx context.Context) ([]order.Order, error) {
	return a.list(ctx, "SELECT payload FROM orders WHERE enriched ORDER BY created_at ASC")
}

func (a *PostgresArchive) list(ctx context.Context, query string) ([]order.Order, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		var o order.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
