// Package worker implements the per-document processing loop: poll a
// source document, run it through a Pipeline, forward results, and emit
// the lifecycle events the Publisher reconciles against.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
	"github.com/kmwllc/lucille-go/messenger"
	"github.com/kmwllc/lucille-go/retry"
	"github.com/kmwllc/lucille-go/stage"
)

// MetricsLogInterval controls how often Run logs the rate meter.
const MetricsLogInterval = 10 * time.Second

// Worker drains a source queue and applies a Pipeline to every document it
// sees. A Worker is single-threaded: the pool that owns it is responsible
// for running several Workers concurrently.
type Worker struct {
	pipelineName string
	pipeline     *stage.Pipeline
	messenger    messenger.WorkerMessenger
	retries      retry.Counter // nil disables retry tracking

	mu        sync.Mutex
	processed int
	start     time.Time
}

// New constructs a Worker. retries may be nil to disable retry-exhaustion
// tracking entirely. A worker pool serves a single pipeline across many
// runs, so the run id an event carries always comes from the document
// being processed, never from the Worker itself.
func New(pipelineName string, pipeline *stage.Pipeline, m messenger.WorkerMessenger, retries retry.Counter) *Worker {
	return &Worker{
		pipelineName: pipelineName,
		pipeline:     pipeline,
		messenger:    m,
		retries:      retries,
	}
}

// Run processes documents until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.run(ctx, -1)
}

// RunN processes exactly n poll cycles, for tests. A poll cycle that finds
// nothing still counts toward n.
func (w *Worker) RunN(ctx context.Context, n int) error {
	return w.run(ctx, n)
}

func (w *Worker) run(ctx context.Context, limit int) error {
	w.start = time.Now()
	lastLog := time.Now()

	for cycles := 0; limit < 0 || cycles < limit; cycles++ {
		if ctx.Err() != nil {
			return nil
		}

		doc, err := w.messenger.PollDocToProcess(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if doc == nil {
			continue
		}

		if err := w.processOne(ctx, doc); err != nil {
			return err
		}

		w.mu.Lock()
		w.processed++
		w.mu.Unlock()

		if time.Since(lastLog) >= MetricsLogInterval {
			w.logRate()
			lastLog = time.Now()
		}
	}
	return nil
}

// processOne runs the full per-document processing algorithm: a retry
// check, the pipeline run, per-result forwarding, and offset commit. A
// returned error means the worker has crashed and must stop; the caller
// propagates it out of run().
func (w *Worker) processOne(ctx context.Context, doc *document.Document) error {
	if w.retries != nil {
		exceeded, err := w.retries.Add(doc)
		if err != nil {
			return err
		}
		if exceeded {
			if err := w.messenger.SendFailed(ctx, doc); err != nil {
				log.Printf("worker: sending %s to dead-letter destination: %v", doc.ID(), err)
			}
			if err := w.emit(ctx, doc.ID(), doc.RunID(), event.Fail, "SENT_TO_DLQ"); err != nil {
				log.Printf("worker: emitting FAIL for %s: %v", doc.ID(), err)
			}
			if err := w.messenger.CommitPendingDocOffsets(ctx); err != nil {
				log.Printf("worker: committing offsets after dead-letter for %s: %v", doc.ID(), err)
			}
			if err := w.retries.Remove(doc); err != nil {
				log.Printf("worker: clearing retry counter for %s: %v", doc.ID(), err)
			}
			return nil
		}
	}

	results, err := w.pipeline.ProcessDocument(ctx, doc)
	if err != nil {
		if evtErr := w.emit(ctx, doc.ID(), doc.RunID(), event.Fail, err.Error()); evtErr != nil {
			log.Printf("worker: emitting FAIL for %s: %v", doc.ID(), evtErr)
		}
		if cErr := w.messenger.CommitPendingDocOffsets(ctx); cErr != nil {
			log.Printf("worker: committing offsets after stage error for %s: %v", doc.ID(), cErr)
		}
		return err
	}

	for _, r := range results {
		if r.ID() != doc.ID() {
			// Children discovered mid-pipeline don't carry their own run id;
			// they belong to the run their parent was published under, and
			// need it stamped before they travel any further downstream.
			if r.RunID() == "" {
				if err := r.InitializeRunID(doc.RunID()); err != nil {
					log.Printf("worker: stamping run id on child %s: %v", r.ID(), err)
				}
			}
			if err := w.emit(ctx, r.ID(), doc.RunID(), event.Create, ""); err != nil {
				return err
			}
		}
		if r.IsDropped() {
			if err := w.emit(ctx, r.ID(), doc.RunID(), event.Finish, ""); err != nil {
				return err
			}
			continue
		}
		if err := w.messenger.SendCompleted(ctx, r); err != nil {
			return err
		}
	}

	if err := w.messenger.CommitPendingDocOffsets(ctx); err != nil {
		return err
	}
	if w.retries != nil {
		if err := w.retries.Remove(doc); err != nil {
			log.Printf("worker: clearing retry counter for %s: %v", doc.ID(), err)
		}
	}
	return nil
}

func (w *Worker) emit(ctx context.Context, docID, runID string, kind event.Kind, message string) error {
	return w.messenger.SendEvent(ctx, event.New(docID, runID, kind, message))
}

func (w *Worker) logRate() {
	w.mu.Lock()
	n := w.processed
	elapsed := time.Since(w.start).Seconds()
	w.mu.Unlock()

	var rate float64
	if elapsed > 0 {
		rate = float64(n) / elapsed
	}
	log.Printf("worker[%s]: processed=%d rate=%.2f docs/sec", w.pipelineName, n, rate)
}
