package memloop

import (
	"context"
	"testing"
	"time"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

func TestLoop_PublishPollComplete(t *testing.T) {
	l := New(4)
	pub := l.PublisherSide()
	work := l.WorkerSide()
	idx := l.IndexerSide()

	ctx := context.Background()
	doc := document.New("doc-1")

	if err := pub.SendForProcessing(ctx, doc); err != nil {
		t.Fatalf("SendForProcessing: %v", err)
	}

	got, err := work.PollDocToProcess(ctx)
	if err != nil {
		t.Fatalf("PollDocToProcess: %v", err)
	}
	if got == nil || got.ID() != "doc-1" {
		t.Fatalf("PollDocToProcess() = %v, want doc-1", got)
	}

	if err := work.SendCompleted(ctx, got); err != nil {
		t.Fatalf("SendCompleted: %v", err)
	}
	completed, offset, err := idx.PollCompleted(ctx)
	if err != nil {
		t.Fatalf("PollCompleted: %v", err)
	}
	if completed == nil || completed.ID() != "doc-1" {
		t.Fatalf("PollCompleted() = %v, want doc-1", completed)
	}
	if offset != 0 {
		t.Fatalf("PollCompleted() offset = %d, want 0 for the first message", offset)
	}

	if err := work.SendEvent(ctx, event.New("doc-1", "run-1", event.Finish, "")); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	evt, err := pub.PollEvent(ctx)
	if err != nil {
		t.Fatalf("PollEvent: %v", err)
	}
	if evt == nil || evt.Kind != event.Finish {
		t.Fatalf("PollEvent() = %v, want FINISH", evt)
	}
}

func TestLoop_PollDocToProcess_TimesOutWhenEmpty(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	doc, err := l.WorkerSide().PollDocToProcess(ctx)
	if err != nil {
		t.Fatalf("PollDocToProcess: %v", err)
	}
	if doc != nil {
		t.Fatalf("PollDocToProcess() = %v, want nil", doc)
	}
}
