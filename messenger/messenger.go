// Package messenger defines two of the three transport capability sets the
// core depends on: WorkerMessenger and IndexerMessenger. The third,
// publisher.Messenger, is defined in package publisher. Concrete transports
// for all three live in the kafka and memloop subpackages.
package messenger

import (
	"context"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// WorkerMessenger is the transport surface a Worker needs.
type WorkerMessenger interface {
	// PollDocToProcess blocks (bounded by the transport's own timeout) for
	// the next source document. A nil document with a nil error means the
	// poll timed out with nothing available.
	PollDocToProcess(ctx context.Context) (*document.Document, error)
	SendCompleted(ctx context.Context, doc *document.Document) error
	SendEvent(ctx context.Context, evt event.Event) error
	SendFailed(ctx context.Context, doc *document.Document) error
	CommitPendingDocOffsets(ctx context.Context) error
	Close() error
}

// IndexerMessenger is the transport surface the Indexer needs.
type IndexerMessenger interface {
	// PollCompleted blocks (bounded by the transport's own timeout) for the
	// next completed document, along with the transport offset it arrived
	// at (used as the external version for optional document versioning).
	// A nil document with a nil error means the poll timed out with
	// nothing available.
	PollCompleted(ctx context.Context) (*document.Document, int64, error)
	SendEvent(ctx context.Context, evt event.Event) error
	Close() error
}
