// Package retry defines the RetryCounter capability a Worker uses to detect
// poison documents: a document redelivered past a configured maximum is
// routed to the dead-letter destination instead of being processed again.
package retry

import "github.com/kmwllc/lucille-go/document"

// Counter tracks how many times each document id has been seen. It is the
// one process-wide mutable resource shared between Workers; implementations
// must serialize their own access.
type Counter interface {
	// Add records an attempt for doc and reports whether the configured
	// maximum has now been exceeded.
	Add(doc *document.Document) (exceeded bool, err error)
	// Remove clears the counter entry for doc, typically called once the
	// document reaches a terminal state.
	Remove(doc *document.Document) error
}
