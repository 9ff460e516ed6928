package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
	"github.com/kmwllc/lucille-go/retry/inmemory"
	"github.com/kmwllc/lucille-go/stage"
)

// fnStage adapts a closure to the stage.Stage interface, mirroring the
// helper used by the stage package's own pipeline tests.
type fnStage struct {
	stage.Base
	fn func(*document.Document) ([]*document.Document, error)
}

func (s *fnStage) ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error) {
	return s.fn(doc)
}

func newFnStage(name string, fn func(*document.Document) ([]*document.Document, error)) *fnStage {
	return &fnStage{Base: stage.NewBase(name, stage.Condition{}), fn: fn}
}

type stubMessenger struct {
	mu        sync.Mutex
	toDeliver []*document.Document
	completed []*document.Document
	failed    []*document.Document
	events    []event.Event
	commits   int
}

func (m *stubMessenger) PollDocToProcess(ctx context.Context) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.toDeliver) == 0 {
		return nil, nil
	}
	doc := m.toDeliver[0]
	m.toDeliver = m.toDeliver[1:]
	return doc, nil
}

func (m *stubMessenger) SendCompleted(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, doc)
	return nil
}

func (m *stubMessenger) SendEvent(ctx context.Context, evt event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *stubMessenger) SendFailed(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, doc)
	return nil
}

func (m *stubMessenger) CommitPendingDocOffsets(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *stubMessenger) Close() error { return nil }

func TestWorker_SuccessPathSendsCompletedAndFinish(t *testing.T) {
	upper := newFnStage("upper", func(doc *document.Document) ([]*document.Document, error) {
		doc.SetField("touched", true)
		return nil, nil
	})
	p := stage.New("p", upper)
	m := &stubMessenger{toDeliver: []*document.Document{document.New("doc-1")}}
	w := New("p", p, m, nil)

	if err := w.RunN(context.Background(), 1); err != nil {
		t.Fatalf("RunN: %v", err)
	}
	if len(m.completed) != 1 || m.completed[0].ID() != "doc-1" {
		t.Fatalf("completed = %v, want [doc-1]", m.completed)
	}
	if m.commits != 1 {
		t.Fatalf("commits = %d, want 1", m.commits)
	}
	if len(m.events) != 0 {
		t.Fatalf("events = %v, want none (parent completion is signalled by the Indexer's FINISH)", m.events)
	}
}

func TestWorker_ChildEmitsCreateBeforeParentCompletes(t *testing.T) {
	spawner := newFnStage("spawner", func(doc *document.Document) ([]*document.Document, error) {
		return []*document.Document{document.New("child-1")}, nil
	})
	p := stage.New("p", spawner)
	m := &stubMessenger{toDeliver: []*document.Document{document.NewWithRunID("parent-1", "run-1")}}
	w := New("p", p, m, nil)

	if err := w.RunN(context.Background(), 1); err != nil {
		t.Fatalf("RunN: %v", err)
	}
	if len(m.events) != 1 || m.events[0].Kind != event.Create || m.events[0].DocumentID != "child-1" {
		t.Fatalf("events = %v, want a single CREATE for child-1", m.events)
	}
	if m.events[0].RunID != "run-1" {
		t.Fatalf("events[0].RunID = %q, want the parent's run id, not the worker's", m.events[0].RunID)
	}
	if len(m.completed) != 2 {
		t.Fatalf("completed = %v, want parent and child both forwarded", m.completed)
	}
	for _, d := range m.completed {
		if d.RunID() != "run-1" {
			t.Fatalf("completed %s has RunID %q, want it stamped with the parent's run id", d.ID(), d.RunID())
		}
	}
}

func TestWorker_EventsCarryTheDocumentsRunID(t *testing.T) {
	boom := newFnStage("boom", func(doc *document.Document) ([]*document.Document, error) {
		return nil, errors.New("stage exploded")
	})
	p := stage.New("p", boom)
	m := &stubMessenger{toDeliver: []*document.Document{document.NewWithRunID("doc-1", "run-42")}}
	w := New("p", p, m, nil)

	if err := w.RunN(context.Background(), 1); err == nil {
		t.Fatalf("RunN() = nil, want stage error")
	}
	if len(m.events) != 1 || m.events[0].RunID != "run-42" {
		t.Fatalf("events = %v, want a single event stamped with run-42", m.events)
	}
}

func TestWorker_DroppedDocumentEmitsFinishInsteadOfForwarding(t *testing.T) {
	dropper := newFnStage("dropper", func(doc *document.Document) ([]*document.Document, error) {
		doc.SetDropped()
		return nil, nil
	})
	p := stage.New("p", dropper)
	m := &stubMessenger{toDeliver: []*document.Document{document.New("doc-1")}}
	w := New("p", p, m, nil)

	if err := w.RunN(context.Background(), 1); err != nil {
		t.Fatalf("RunN: %v", err)
	}
	if len(m.completed) != 0 {
		t.Fatalf("completed = %v, want none (dropped document must not reach the indexer)", m.completed)
	}
	if len(m.events) != 1 || m.events[0].Kind != event.Finish {
		t.Fatalf("events = %v, want a single FINISH", m.events)
	}
}

func TestWorker_StageErrorEmitsFailAndTerminates(t *testing.T) {
	boom := newFnStage("boom", func(doc *document.Document) ([]*document.Document, error) {
		return nil, errors.New("stage exploded")
	})
	p := stage.New("p", boom)
	m := &stubMessenger{toDeliver: []*document.Document{document.New("doc-1")}}
	w := New("p", p, m, nil)

	err := w.RunN(context.Background(), 1)
	if err == nil {
		t.Fatalf("RunN() = nil, want error (worker must terminate on stage failure)")
	}
	if len(m.events) != 1 || m.events[0].Kind != event.Fail {
		t.Fatalf("events = %v, want a single FAIL", m.events)
	}
	if m.commits != 1 {
		t.Fatalf("commits = %d, want 1 (offset still committed on failure)", m.commits)
	}
}

func TestWorker_RetryExhaustionSendsToDeadLetter(t *testing.T) {
	boom := newFnStage("boom", func(doc *document.Document) ([]*document.Document, error) {
		return nil, errors.New("always fails")
	})
	counter := inmemory.New(2)
	doc := document.New("doc-1")

	// Two attempts across separate Worker instances (simulating redelivery
	// after two crashed workers) stay under the threshold and still
	// terminate their worker on the stage error.
	for i := 0; i < 2; i++ {
		p := stage.New("p", boom)
		m := &stubMessenger{toDeliver: []*document.Document{doc}}
		w := New("p", p, m, counter)
		if err := w.RunN(context.Background(), 1); err == nil {
			t.Fatalf("attempt %d: RunN() = nil, want stage error", i+1)
		}
	}

	// The third delivery of the same document trips the dead-letter path
	// instead of ever reaching the pipeline.
	p := stage.New("p", boom)
	m := &stubMessenger{toDeliver: []*document.Document{doc}}
	w := New("p", p, m, counter)
	if err := w.RunN(context.Background(), 1); err != nil {
		t.Fatalf("RunN: %v (dead-letter path must not surface a worker-terminating error)", err)
	}
	if len(m.failed) != 1 {
		t.Fatalf("failed = %v, want one dead-letter send", m.failed)
	}
	if len(m.events) != 1 || m.events[0].Kind != event.Fail || m.events[0].Message != "SENT_TO_DLQ" {
		t.Fatalf("events = %v, want a single FAIL with message SENT_TO_DLQ", m.events)
	}
}
