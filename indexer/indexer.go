// Package indexer implements the batching consumer that drains completed
// documents, accumulates them into bounded batches, ships each batch to a
// Sink in one bulk call, and translates the sink's outcome into
// per-document FINISH/FAIL events.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
	"github.com/kmwllc/lucille-go/messenger"
)

// DefaultBatchSize is the default batch size when none is configured. The
// default batch timeout lives in package config, alongside the rest of
// the indexer's configurable defaults.
const (
	DefaultBatchSize = 100
)

// Indexer drains completed documents from a Messenger, batches them, and
// ships each batch to a Sink.
type Indexer struct {
	messenger messenger.IndexerMessenger
	sink      Sink
	batch     *Batch
}

// New constructs an Indexer. batch controls the size/timeout policy; see
// NewBatch. An Indexer serves every run of its pipeline, so the run id an
// event carries always comes from the completed document itself, never
// from the Indexer.
func New(m messenger.IndexerMessenger, sink Sink, batch *Batch) *Indexer {
	return &Indexer{messenger: m, sink: sink, batch: batch}
}

// Run validates the sink connection, then polls until ctx is canceled,
// flushing any partial batch on the way out.
func (idx *Indexer) Run(ctx context.Context) error {
	if err := idx.sink.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("indexer: sink connection invalid: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return idx.flush(context.Background())
		}

		doc, offset, err := idx.messenger.PollCompleted(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return idx.flush(context.Background())
			}
			return err
		}

		if docs, offsets := idx.batch.Add(doc, offset); docs != nil {
			if err := idx.dispatch(ctx, docs, offsets); err != nil {
				return err
			}
		}
	}
}

func (idx *Indexer) flush(ctx context.Context) error {
	if docs, offsets := idx.batch.Flush(); docs != nil {
		return idx.dispatch(ctx, docs, offsets)
	}
	return nil
}

// dispatch submits one batch to the sink and emits a FINISH or FAIL event
// for every document in it.
func (idx *Indexer) dispatch(ctx context.Context, docs []*document.Document, offsets []int64) error {
	results, err := idx.sink.Index(ctx, docs, offsets)
	if err != nil {
		for _, d := range docs {
			idx.emit(ctx, d.ID(), d.RunID(), event.Fail, err.Error())
		}
		return nil
	}

	byID := make(map[string]error, len(results))
	for _, r := range results {
		byID[r.DocumentID] = r.Err
	}

	var firstErr error
	for _, d := range docs {
		if rerr, ok := byID[d.ID()]; ok && rerr != nil {
			idx.emit(ctx, d.ID(), d.RunID(), event.Fail, rerr.Error())
			if firstErr == nil {
				firstErr = rerr
			}
			continue
		}
		idx.emit(ctx, d.ID(), d.RunID(), event.Finish, "")
	}
	if firstErr != nil {
		return fmt.Errorf("indexer: partial batch failure: %w", firstErr)
	}
	return nil
}

func (idx *Indexer) emit(ctx context.Context, docID, runID string, kind event.Kind, message string) {
	if err := idx.messenger.SendEvent(ctx, event.New(docID, runID, kind, message)); err != nil {
		log.Printf("indexer: emitting %s for %s: %v", kind, docID, err)
	}
}
