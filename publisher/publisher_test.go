package publisher

import (
	"context"
	"testing"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

type stubMessenger struct {
	sent   []*document.Document
	events chan event.Event
}

func newStubMessenger() *stubMessenger {
	return &stubMessenger{events: make(chan event.Event, 16)}
}

func (m *stubMessenger) Initialize(ctx context.Context, runID, pipelineName string) error { return nil }

func (m *stubMessenger) SendForProcessing(ctx context.Context, doc *document.Document) error {
	m.sent = append(m.sent, doc)
	return nil
}

func (m *stubMessenger) PollEvent(ctx context.Context) (*event.Event, error) {
	select {
	case evt := <-m.events:
		return &evt, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (m *stubMessenger) Close() error { return nil }

func TestPublisher_ReconciledOnlyWhenEveryIDIsZero(t *testing.T) {
	m := newStubMessenger()
	p, err := New(context.Background(), m, "pipeline", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d1 := document.New("1")
	if err := p.Publish(context.Background(), d1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsReconciled() {
		t.Fatalf("should not be reconciled with an outstanding publish")
	}

	p.HandleEvent(event.New("1", "run-1", event.Finish, ""))
	if !p.IsReconciled() {
		t.Fatalf("should be reconciled once the only id is resolved")
	}
}

func TestPublisher_ScenarioJDBCJoinChildEmission(t *testing.T) {
	m := newStubMessenger()
	p, err := New(context.Background(), m, "pipeline", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent := document.New("1")
	if err := p.Publish(context.Background(), parent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	children := []string{"0", "1", "2"}
	for _, c := range children {
		p.HandleEvent(event.New(c, "run-1", event.Create, ""))
	}

	published, _, _ := p.Counts()
	if published != 1 {
		t.Fatalf("expected 1 publish call, got %d", published)
	}
	if p.IsReconciled() {
		t.Fatalf("should not be reconciled with 4 outstanding documents")
	}

	for _, id := range append([]string{"1"}, children...) {
		p.HandleEvent(event.New(id, "run-1", event.Finish, ""))
	}

	_, succeeded, _ := p.Counts()
	if succeeded != 4 {
		t.Fatalf("expected 4 FINISH events accounted for, got %d", succeeded)
	}
	if !p.IsReconciled() {
		t.Fatalf("expected reconciliation once parent and all 3 children finish")
	}
}

func TestPublisher_ChildBeforeParentOrdering(t *testing.T) {
	m := newStubMessenger()
	p, err := New(context.Background(), m, "pipeline", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent := document.New("P")
	if err := p.Publish(context.Background(), parent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// CREATE(C1) must be folded in before FINISH(P), per the worker's
	// emission order.
	p.HandleEvent(event.New("C1", "run-1", event.Create, ""))
	if p.IsReconciled() {
		t.Fatalf("should not be reconciled with C1 outstanding")
	}

	p.HandleEvent(event.New("P", "run-1", event.Finish, ""))
	if p.IsReconciled() {
		t.Fatalf("isReconciled() must stay false until FINISH(C1) too")
	}

	p.HandleEvent(event.New("C1", "run-1", event.Finish, ""))
	if !p.IsReconciled() {
		t.Fatalf("expected reconciliation once both P and C1 finish")
	}
}

func TestPublisher_HasErrorsSetOnFail(t *testing.T) {
	m := newStubMessenger()
	p, err := New(context.Background(), m, "pipeline", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := document.New("1")
	p.Publish(context.Background(), doc)
	p.HandleEvent(event.New("1", "run-1", event.Fail, "boom"))

	if !p.HasErrors() {
		t.Fatalf("expected HasErrors to be true after a FAIL event")
	}
	if !p.IsReconciled() {
		t.Fatalf("a FAIL event should still resolve the pending count")
	}
}
