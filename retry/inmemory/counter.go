// Package inmemory implements retry.Counter backed by a mutex-guarded
// map, suitable for tests and single-process deployments, safe for
// concurrent use by multiple Workers.
package inmemory

import (
	"sync"

	"github.com/kmwllc/lucille-go/document"
)

// Counter is an in-memory retry.Counter with a configurable maximum.
type Counter struct {
	max int

	mu     sync.Mutex
	counts map[string]int
}

// New constructs a Counter that treats a document as exhausted once it has
// been added more than max times.
func New(max int) *Counter {
	return &Counter{max: max, counts: make(map[string]int)}
}

// Add increments the counter for doc.ID() and reports whether it now
// exceeds the configured maximum.
func (c *Counter) Add(doc *document.Document) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[doc.ID()]++
	return c.counts[doc.ID()] > c.max, nil
}

// Remove clears the counter entry for doc.ID().
func (c *Counter) Remove(doc *document.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, doc.ID())
	return nil
}
