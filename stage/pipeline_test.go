package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/kmwllc/lucille-go/document"
)

type fnStage struct {
	Base
	fn func(ctx context.Context, doc *document.Document) ([]*document.Document, error)
}

func (s fnStage) ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error) {
	return s.fn(ctx, doc)
}

func newFnStage(name string, fn func(context.Context, *document.Document) ([]*document.Document, error)) Stage {
	return fnStage{Base: NewBase(name, NewCondition(nil, nil, Must)), fn: fn}
}

func TestPipeline_SingleStageMutatesInPlace(t *testing.T) {
	s := newFnStage("set-foo", func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
		return nil, doc.SetField("foo", "bar")
	})
	p := New("test", s)
	doc := document.New("1")

	results, err := p.ProcessDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the parent, got %d results", len(results))
	}
	got, _ := doc.GetString("foo")
	if got != "bar" {
		t.Fatalf("foo = %q, want bar", got)
	}
}

func TestPipeline_ChildrenNotRunThroughLaterStages(t *testing.T) {
	emitChild := newFnStage("emit-child", func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
		return []*document.Document{document.New("child-1")}, nil
	})
	markSeen := newFnStage("mark-seen", func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
		return nil, doc.SetField("seen", true)
	})

	p := New("test", emitChild, markSeen)
	doc := document.New("parent")

	results, err := p.ProcessDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected [parent, child], got %d", len(results))
	}
	if results[0].ID() != "parent" || results[1].ID() != "child-1" {
		t.Fatalf("unexpected ordering: %s, %s", results[0].ID(), results[1].ID())
	}
	if results[1].Has("seen") {
		t.Fatalf("child should not have been run through the later stage")
	}
	if !results[0].Has("seen") {
		t.Fatalf("parent should have been run through the later stage")
	}
}

func TestPipeline_StageErrorAbortsAndSurfacesPartialDoc(t *testing.T) {
	boom := newFnStage("boom", func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
		doc.SetField("touched", true)
		return nil, errors.New("stage exploded")
	})
	never := newFnStage("never", func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
		return nil, doc.SetField("never", true)
	})

	p := New("test", boom, never)
	doc := document.New("1")

	results, err := p.ProcessDocument(context.Background(), doc)
	if err == nil {
		t.Fatalf("expected error from failing stage")
	}
	if len(results) != 1 || results[0] != doc {
		t.Fatalf("expected the partially-mutated parent to be surfaced")
	}
	if !doc.Has("touched") {
		t.Fatalf("expected partial mutation to be visible")
	}
	if doc.Has("never") {
		t.Fatalf("stage after the failure should not have run")
	}
}

func TestPipeline_ConditionalSkip(t *testing.T) {
	cond := NewCondition([]string{"type"}, []string{"museum"}, Must)
	s := fnStage{
		Base: NewBase("conditional", cond),
		fn: func(_ context.Context, doc *document.Document) ([]*document.Document, error) {
			return nil, doc.SetField("ran", true)
		},
	}
	p := New("test", s)

	doc := document.New("1")
	doc.SetField("type", "library")
	if _, err := p.ProcessDocument(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Has("ran") {
		t.Fatalf("stage should have been skipped by its condition")
	}

	doc2 := document.New("2")
	doc2.SetField("type", "museum")
	if _, err := p.ProcessDocument(context.Background(), doc2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc2.Has("ran") {
		t.Fatalf("stage should have run when condition matches")
	}
}
