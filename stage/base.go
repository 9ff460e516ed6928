package stage

import (
	"context"

	"github.com/kmwllc/lucille-go/document"
)

// Base provides the scaffolding common to every concrete Stage: a name and
// a conditional-execution predicate. Concrete stages embed Base and
// implement only ProcessDocument.
type Base struct {
	name      string
	condition Condition
}

// NewBase constructs a Base with the given name and condition.
func NewBase(name string, condition Condition) Base {
	return Base{name: name, condition: condition}
}

func (b Base) Name() string { return b.name }

func (b Base) ShouldProcess(doc *document.Document) bool { return b.condition.Test(doc) }

// Start and Stop are no-ops by default; stages that hold resources (a DB
// connection pool, an HTTP client) override them.
func (b Base) Start(ctx context.Context) error { return nil }
func (b Base) Stop(ctx context.Context) error  { return nil }
