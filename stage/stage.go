// Package stage defines the Stage and Pipeline abstractions: a Stage
// mutates a Document in place and may emit child Documents as a side
// effect; a Pipeline runs an ordered list of Stages against a single
// Document. Individual Stage business logic (dictionary lookup, JDBC
// join, ...) lives in sibling packages; this package only knows about the
// contract and the conditional-execution predicate every Stage carries.
package stage

import (
	"context"

	"github.com/kmwllc/lucille-go/document"
)

// Stage is an in-place Document transformation that may emit child
// Documents. Implementations are invoked repeatedly across the lifetime of
// a Worker and must be safe to call repeatedly, but never concurrently on
// the same Document.
type Stage interface {
	// Start is called once before the Stage processes any document.
	Start(ctx context.Context) error
	// Stop is called once when the owning Pipeline is shut down.
	Stop(ctx context.Context) error
	// ShouldProcess evaluates this Stage's conditional-execution predicate
	// against doc. A Stage with no configured predicate always returns true.
	ShouldProcess(doc *document.Document) bool
	// ProcessDocument mutates doc in place and returns any child documents
	// generated as a side effect. Implementations should return a nil slice,
	// not an empty one, when no children are produced.
	ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error)
	// Name identifies the stage for logging and config lookups.
	Name() string
}

// ProcessConditional runs s.ProcessDocument(doc) iff s.ShouldProcess(doc);
// otherwise it returns (nil, nil), signalling that the stage was skipped.
func ProcessConditional(ctx context.Context, s Stage, doc *document.Document) ([]*document.Document, error) {
	if !s.ShouldProcess(doc) {
		return nil, nil
	}
	return s.ProcessDocument(ctx, doc)
}
