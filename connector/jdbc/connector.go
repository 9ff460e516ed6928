// Package jdbc implements a connector.Connector that runs a SQL query and
// publishes one Document per result row, using jackc/pgx/v5.
package jdbc

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmwllc/lucille-go/document"
)

// Connector runs Query against Pool and publishes one Document per row,
// using the value of the column named IDField as the document's id.
type Connector struct {
	Pool    *pgxpool.Pool
	Query   string
	IDField string
}

// New constructs a Connector against an already-open pool.
func New(pool *pgxpool.Pool, query, idField string) *Connector {
	return &Connector{Pool: pool, Query: query, IDField: idField}
}

// Name identifies this connector for logging.
func (c *Connector) Name() string { return "jdbc" }

// Run executes Query once and publishes each row in result order.
func (c *Connector) Run(ctx context.Context, publish func(context.Context, *document.Document) error) error {
	rows, err := c.Pool.Query(ctx, c.Query)
	if err != nil {
		return fmt.Errorf("jdbc connector: query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanRow(rows, c.IDField)
		if err != nil {
			return fmt.Errorf("jdbc connector: scanning row: %w", err)
		}
		if err := publish(ctx, doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanRow(rows pgx.Rows, idField string) (*document.Document, error) {
	fields := rows.FieldDescriptions()
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}

	var id string
	for i, fd := range fields {
		if string(fd.Name) == idField && values[i] != nil {
			id = fmt.Sprintf("%v", values[i])
		}
	}
	if id == "" {
		return nil, fmt.Errorf("row missing non-null %q column", idField)
	}

	doc := document.New(id)
	for i, fd := range fields {
		if string(fd.Name) == idField || values[i] == nil {
			continue
		}
		if err := doc.SetField(string(fd.Name), fmt.Sprintf("%v", values[i])); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
