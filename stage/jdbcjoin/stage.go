// Package jdbcjoin implements a reference Stage, built on jackc/pgx/v5,
// that emits one child Document per row of a configured "join" SQL query
// keyed by a field of the parent document. Running the join mid-pipeline,
// rather than at the connector, means every child is tracked
// independently by the run coordinator.
package jdbcjoin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/stage"
)

// Stage runs Query against Pool for every parent document, binding the
// value of JoinField as the query's sole positional parameter, and emits
// one child Document per result row. Children are assigned sequential ids
// ("0", "1", "2", ...) distinct from any column in the result set, matching
// the join scenario spec describes.
type Stage struct {
	stage.Base
	Pool      *pgxpool.Pool
	Query     string
	JoinField string
}

// New constructs a jdbcjoin Stage against an already-open pool. JoinField
// names the parent field (typically "id") whose value is bound into Query.
func New(name string, pool *pgxpool.Pool, query, joinField string, cond stage.Condition) *Stage {
	return &Stage{
		Base:      stage.NewBase(name, cond),
		Pool:      pool,
		Query:     query,
		JoinField: joinField,
	}
}

// ProcessDocument queries the child rows for doc and returns one Document
// per row, each populated with the row's non-null columns as single-valued
// string fields (GetStringList still reads each as a one-element sequence).
func (s *Stage) ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error) {
	joinValue, ok := doc.GetString(s.JoinField)
	if s.JoinField == document.IDField {
		joinValue, ok = doc.ID(), true
	}
	if !ok {
		return nil, nil
	}

	rows, err := s.Pool.Query(ctx, s.Query, joinValue)
	if err != nil {
		return nil, fmt.Errorf("jdbcjoin: query failed: %w", err)
	}
	defer rows.Close()

	children, err := scanChildren(rows)
	if err != nil {
		return nil, fmt.Errorf("jdbcjoin: scanning rows: %w", err)
	}
	return children, nil
}

func scanChildren(rows pgx.Rows) ([]*document.Document, error) {
	fields := rows.FieldDescriptions()
	var children []*document.Document
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		child := document.New(strconv.Itoa(len(children)))
		for i, fd := range fields {
			if values[i] == nil {
				continue
			}
			if err := child.SetField(string(fd.Name), fmt.Sprintf("%v", values[i])); err != nil {
				return nil, err
			}
		}
		children = append(children, child)
	}
	return children, rows.Err()
}
