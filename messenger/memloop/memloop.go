// Package memloop provides an in-process, channel-backed implementation of
// every Messenger interface, used by tests; the cmd entry points use the
// kafka transport. It plays the same role the
// teacher's buffered-channel fan-out in pkg/kafkaclient.KafkaConsumer.Poll
// plays for tests, generalized to the three messenger surfaces.
package memloop

import (
	"context"
	"sync"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// Loop is a single in-memory pipeline transport: one channel for source
// documents, one for completed documents, and one for lifecycle events. A
// Loop is shared by exactly one publisher, one or more workers and one
// indexer within the same process.
type Loop struct {
	source    chan *document.Document
	completed chan *document.Document
	events    chan event.Event

	offsetMu   sync.Mutex
	nextOffset int64
}

// New constructs a Loop with the given channel capacities.
func New(bufSize int) *Loop {
	return &Loop{
		source:    make(chan *document.Document, bufSize),
		completed: make(chan *document.Document, bufSize),
		events:    make(chan event.Event, bufSize),
	}
}

// WorkerSide returns the messenger.WorkerMessenger view of this loop.
func (l *Loop) WorkerSide() *WorkerEnd { return &WorkerEnd{l} }

// IndexerSide returns the messenger.IndexerMessenger view of this loop.
func (l *Loop) IndexerSide() *IndexerEnd { return &IndexerEnd{l} }

// PublisherSide returns the publisher.Messenger view of this loop.
func (l *Loop) PublisherSide() *PublisherEnd { return &PublisherEnd{l} }

// WorkerEnd is the Worker-facing side of a Loop.
type WorkerEnd struct{ l *Loop }

func (w *WorkerEnd) PollDocToProcess(ctx context.Context) (*document.Document, error) {
	select {
	case doc := <-w.l.source:
		return doc, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (w *WorkerEnd) SendCompleted(ctx context.Context, doc *document.Document) error {
	select {
	case w.l.completed <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorkerEnd) SendEvent(ctx context.Context, evt event.Event) error {
	select {
	case w.l.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendFailed has no separate dead-letter channel in-process; the failure is
// already fully described by the FAIL event, so this is a no-op.
func (w *WorkerEnd) SendFailed(ctx context.Context, doc *document.Document) error {
	return nil
}

// CommitPendingDocOffsets is a no-op: an in-memory channel has no offsets to
// commit, and a message removed from the channel by PollDocToProcess is
// already gone for good.
func (w *WorkerEnd) CommitPendingDocOffsets(ctx context.Context) error { return nil }

func (w *WorkerEnd) Close() error { return nil }

// IndexerEnd is the Indexer-facing side of a Loop.
type IndexerEnd struct{ l *Loop }

// PollCompleted has no real transport offset to report, so it hands out a
// per-loop monotonically increasing sequence number instead; this still
// satisfies the "external monotonic version" contract sinks rely on for
// document versioning.
func (i *IndexerEnd) PollCompleted(ctx context.Context) (*document.Document, int64, error) {
	select {
	case doc := <-i.l.completed:
		i.l.offsetMu.Lock()
		offset := i.l.nextOffset
		i.l.nextOffset++
		i.l.offsetMu.Unlock()
		return doc, offset, nil
	case <-ctx.Done():
		return nil, 0, nil
	}
}

func (i *IndexerEnd) SendEvent(ctx context.Context, evt event.Event) error {
	select {
	case i.l.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *IndexerEnd) Close() error { return nil }

// PublisherEnd is the Publisher-facing side of a Loop.
type PublisherEnd struct{ l *Loop }

func (p *PublisherEnd) Initialize(ctx context.Context, runID, pipelineName string) error {
	return nil
}

func (p *PublisherEnd) SendForProcessing(ctx context.Context, doc *document.Document) error {
	select {
	case p.l.source <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PublisherEnd) PollEvent(ctx context.Context) (*event.Event, error) {
	select {
	case evt := <-p.l.events:
		return &evt, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (p *PublisherEnd) Close() error { return nil }
