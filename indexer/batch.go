package indexer

import (
	"time"

	"github.com/kmwllc/lucille-go/document"
)

// Batch accumulates completed documents until a size or time bound is
// reached. Alongside each document it tracks the source-transport offset
// it arrived with, so a Sink that supports optional external versioning
// can use it as a monotonic version number.
type Batch struct {
	size    int
	timeout time.Duration

	docs    []*document.Document
	offsets []int64
	start   time.Time
}

// NewBatch constructs an empty Batch bounded by size and timeout.
func NewBatch(size int, timeout time.Duration) *Batch {
	return &Batch{size: size, timeout: timeout}
}

// Add appends doc and its transport offset to the current batch and
// returns it (resetting the accumulator) once it reaches the configured
// size. A nil doc represents an empty poll: it returns the accumulated
// batch once the timeout has elapsed since the first document was added,
// letting idle polling still make progress.
func (b *Batch) Add(doc *document.Document, offset int64) ([]*document.Document, []int64) {
	if doc == nil {
		if len(b.docs) > 0 && time.Since(b.start) >= b.timeout {
			return b.take()
		}
		return nil, nil
	}

	if len(b.docs) == 0 {
		b.start = time.Now()
	}
	b.docs = append(b.docs, doc)
	b.offsets = append(b.offsets, offset)
	if len(b.docs) >= b.size {
		return b.take()
	}
	return nil, nil
}

// Flush unconditionally returns and clears the current batch, used at
// shutdown so no in-flight documents are silently dropped.
func (b *Batch) Flush() ([]*document.Document, []int64) {
	if len(b.docs) == 0 {
		return nil, nil
	}
	return b.take()
}

func (b *Batch) take() ([]*document.Document, []int64) {
	docs, offsets := b.docs, b.offsets
	b.docs, b.offsets = nil, nil
	return docs, offsets
}
