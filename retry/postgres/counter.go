// Package postgres implements retry.Counter on a Postgres table via
// jackc/pgx/v5, for deployments where retry counts must survive a Worker
// restart.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmwllc/lucille-go/document"
)

// Counter persists retry counts in a Postgres table with columns
// (doc_id text primary key, attempts int).
type Counter struct {
	pool  *pgxpool.Pool
	max   int
	table string
}

// New constructs a Counter backed by pool, storing rows in table.
func New(pool *pgxpool.Pool, table string, max int) *Counter {
	return &Counter{pool: pool, table: table, max: max}
}

// EnsureSchema creates the backing table if it does not already exist.
func (c *Counter) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (doc_id TEXT PRIMARY KEY, attempts INT NOT NULL)`, c.table))
	if err != nil {
		return fmt.Errorf("postgres: creating retry table: %w", err)
	}
	return nil
}

// Add increments the persisted attempt count for doc.ID() and reports
// whether it now exceeds the configured maximum.
func (c *Counter) Add(doc *document.Document) (bool, error) {
	var attempts int
	query := fmt.Sprintf(`
		INSERT INTO %s (doc_id, attempts) VALUES ($1, 1)
		ON CONFLICT (doc_id) DO UPDATE SET attempts = %s.attempts + 1
		RETURNING attempts`, c.table, c.table)
	err := c.pool.QueryRow(context.Background(), query, doc.ID()).Scan(&attempts)
	if err != nil {
		return false, fmt.Errorf("postgres: incrementing retry count: %w", err)
	}
	return attempts > c.max, nil
}

// Remove clears the persisted counter entry for doc.ID().
func (c *Counter) Remove(doc *document.Document) error {
	_, err := c.pool.Exec(context.Background(), fmt.Sprintf(`DELETE FROM %s WHERE doc_id = $1`, c.table), doc.ID())
	if err != nil {
		return fmt.Errorf("postgres: clearing retry count: %w", err)
	}
	return nil
}
