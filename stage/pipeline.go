package stage

import (
	"context"
	"fmt"

	"github.com/kmwllc/lucille-go/document"
)

// Pipeline runs an ordered list of Stages against a single Document.
// Children produced by stage k are emitted as-is; they are never run
// through stages k+1..n. Pipeline is not safe for concurrent use by more
// than one goroutine on the same document at a time; each Worker owns its
// own Pipeline instance.
type Pipeline struct {
	name   string
	stages []Stage
}

// New constructs a Pipeline from the provided stages, applied in order.
func New(name string, stages ...Stage) *Pipeline {
	return &Pipeline{name: name, stages: stages}
}

// Name returns the configured pipeline name (worker.pipeline in config).
func (p *Pipeline) Name() string { return p.name }

// Start starts every stage in order, aborting on the first error.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, s := range p.stages {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("pipeline %s: starting stage %s: %w", p.name, s.Name(), err)
		}
	}
	return nil
}

// Stop stops every stage, continuing past individual stage errors so that
// every stage gets a chance to release its resources; the first error
// encountered, if any, is returned.
func (p *Pipeline) Stop(ctx context.Context) error {
	var first error
	for _, s := range p.stages {
		if err := s.Stop(ctx); err != nil && first == nil {
			first = fmt.Errorf("pipeline %s: stopping stage %s: %w", p.name, s.Name(), err)
		}
	}
	return first
}

// ProcessDocument runs each stage in order on doc and returns
// [doc, child1, child2, ...]: the (possibly mutated, possibly dropped)
// input document first, followed by every child in generation order. Any
// stage error aborts processing for this document; the partially-mutated
// document is returned alongside the error so the caller can still account
// for it.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error) {
	results := []*document.Document{doc}

	for _, s := range p.stages {
		children, err := ProcessConditional(ctx, s, doc)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		results = append(results, children...)
	}

	return results, nil
}
