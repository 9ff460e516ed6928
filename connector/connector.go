// Package connector defines the source-side producer contract: a
// Connector publishes every source Document for a run and returns once
// exhausted. Concrete connectors live in sibling packages.
package connector

import (
	"context"

	"github.com/kmwllc/lucille-go/document"
)

// Connector produces source Documents for a run. Implementations call
// publish for each document and return once exhausted.
type Connector interface {
	Name() string
	Run(ctx context.Context, publish func(context.Context, *document.Document) error) error
}
