package indexer

import (
	"context"

	"github.com/kmwllc/lucille-go/document"
)

// Result reports the outcome of indexing a single document within a batch.
// Err is nil on success.
type Result struct {
	DocumentID string
	Err        error
}

// Sink delivers a batch of documents to a downstream search engine or
// object store. Implementations live in indexer/sink/<name>.
type Sink interface {
	// ValidateConnection is called once before the Indexer starts consuming.
	// A failure is terminal: Indexer.Run returns it and does not retry.
	ValidateConnection(ctx context.Context) error
	// Index submits docs in a single bulk call. offsets holds each
	// document's source-transport offset, positionally aligned with docs,
	// for sinks that support optional external versioning; a sink that
	// doesn't support versioning ignores it. A non-nil error means the
	// entire batch failed at the transport level (network, auth); a nil
	// error with non-nil entries in the returned slice means the sink
	// accepted the batch but reported per-document failures.
	Index(ctx context.Context, docs []*document.Document, offsets []int64) ([]Result, error)
}
