// Package publisher owns the authoritative view of outstanding work for a
// single run and decides when that run is reconciled: every published
// document, and every child discovered mid-pipeline, has reached a
// terminal event (FINISH or FAIL).
package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// Messenger is the subset of transport capabilities a Publisher needs:
// submit documents for processing and receive lifecycle events.
type Messenger interface {
	Initialize(ctx context.Context, runID, pipelineName string) error
	SendForProcessing(ctx context.Context, doc *document.Document) error
	PollEvent(ctx context.Context) (*event.Event, error)
	Close() error
}

// Publisher tracks the pending-document multiset for one run and reports
// whether every entry has been resolved.
type Publisher struct {
	runID        string
	pipelineName string
	messenger    Messenger

	mu           sync.Mutex
	pending      map[string]int
	hasErrors    bool
	numPublished int
	numSucceeded int
	numFailed    int
}

// New creates a Publisher for a fresh run. If runID is empty a UUID is
// generated.
func New(ctx context.Context, messenger Messenger, pipelineName, runID string) (*Publisher, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := messenger.Initialize(ctx, runID, pipelineName); err != nil {
		return nil, fmt.Errorf("publisher: initialize: %w", err)
	}
	return &Publisher{
		runID:        runID,
		pipelineName: pipelineName,
		messenger:    messenger,
		pending:      make(map[string]int),
	}, nil
}

// RunID returns the id shared by every document and event in this run.
func (p *Publisher) RunID() string { return p.runID }

// Publish stamps doc.run_id, sends it for processing and increments its
// pending count.
func (p *Publisher) Publish(ctx context.Context, doc *document.Document) error {
	if doc.RunID() != p.runID {
		if err := doc.InitializeRunID(p.runID); err != nil {
			return fmt.Errorf("publisher: stamping run id: %w", err)
		}
	}
	if err := p.messenger.SendForProcessing(ctx, doc); err != nil {
		return fmt.Errorf("publisher: send for processing: %w", err)
	}

	p.mu.Lock()
	p.pending[doc.ID()]++
	p.numPublished++
	p.mu.Unlock()
	return nil
}

// HandleEvent folds a single Event into the pending multiset. CREATE
// increments the target id's count; FINISH/FAIL decrement it.
func (p *Publisher) HandleEvent(evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt.Kind {
	case event.Create:
		p.pending[evt.DocumentID]++
	case event.Finish:
		p.pending[evt.DocumentID]--
		p.numSucceeded++
	case event.Fail:
		p.pending[evt.DocumentID]--
		p.numFailed++
		p.hasErrors = true
	}
}

// IsReconciled reports whether every id's pending count has reached zero or
// below.
func (p *Publisher) IsReconciled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, count := range p.pending {
		if count > 0 {
			return false
		}
	}
	return true
}

// HasErrors reports whether any FAIL event has been observed so far.
func (p *Publisher) HasErrors() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasErrors
}

// Counts returns the monotonic observability counters.
func (p *Publisher) Counts() (published, succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPublished, p.numSucceeded, p.numFailed
}

// PollEvent blocks (with the transport's configured timeout) for the next
// Event and folds it into the pending multiset before returning it. A nil
// event with a nil error means the poll timed out with nothing available.
func (p *Publisher) PollEvent(ctx context.Context) (*event.Event, error) {
	evt, err := p.messenger.PollEvent(ctx)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, nil
	}
	p.HandleEvent(*evt)
	return evt, nil
}

// Close releases the transport resources backing this Publisher.
func (p *Publisher) Close() error {
	return p.messenger.Close()
}
