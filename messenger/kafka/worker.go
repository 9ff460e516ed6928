package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// WorkerTransport implements messenger.WorkerMessenger on top of Kafka.
// One reader drains the source topic; the completed and dead-letter topics
// each get their own writer; event writers are created lazily per run id
// and cached, since the events topic is keyed by run id.
type WorkerTransport struct {
	cfg       Config
	source    *kafkago.Reader
	completed *kafkago.Writer
	dlq       *kafkago.Writer

	mu           sync.Mutex
	eventWriters map[string]*kafkago.Writer
	pending      []kafkago.Message
}

// NewWorkerTransport connects to Kafka for the given pipeline.
func NewWorkerTransport(cfg Config) *WorkerTransport {
	t := &WorkerTransport{
		cfg:          cfg,
		source:       newReader(cfg, sourceTopic(cfg.Pipeline)),
		completed:    newWriter(cfg, completedTopic(cfg.Pipeline)),
		eventWriters: make(map[string]*kafkago.Writer),
	}
	if cfg.DeadLetterOn {
		t.dlq = newWriter(cfg, deadLetterTopic(cfg.Pipeline))
	}
	return t
}

func (t *WorkerTransport) eventWriter(runID string) *kafkago.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.eventWriters[runID]
	if !ok {
		w = newWriter(t.cfg, eventsTopic(t.cfg.Pipeline, runID))
		t.eventWriters[runID] = w
	}
	return w
}

// PollDocToProcess fetches (but does not commit) the next source document.
func (t *WorkerTransport) PollDocToProcess(ctx context.Context) (*document.Document, error) {
	doc, msg, err := pollDocument(ctx, t.source)
	if doc == nil || err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
	return doc, nil
}

// SendCompleted forwards a processed (non-dropped) document to the
// completed-documents topic.
func (t *WorkerTransport) SendCompleted(ctx context.Context, doc *document.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("kafka: encoding document: %w", err)
	}
	return t.completed.WriteMessages(ctx, kafkago.Message{Key: []byte(doc.ID()), Value: body})
}

// SendEvent publishes an Event to its run's events topic.
func (t *WorkerTransport) SendEvent(ctx context.Context, evt event.Event) error {
	return writeEvent(ctx, t.eventWriter, evt)
}

// SendFailed routes doc to the dead-letter topic.
func (t *WorkerTransport) SendFailed(ctx context.Context, doc *document.Document) error {
	if t.dlq == nil {
		return fmt.Errorf("kafka: dead-letter topic not configured")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("kafka: encoding document: %w", err)
	}
	return t.dlq.WriteMessages(ctx, kafkago.Message{Key: []byte(doc.ID()), Value: body})
}

// CommitPendingDocOffsets commits every source offset fetched since the
// last commit.
func (t *WorkerTransport) CommitPendingDocOffsets(ctx context.Context) error {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return t.source.CommitMessages(ctx, pending...)
}

// Close releases every reader/writer this transport opened.
func (t *WorkerTransport) Close() error {
	t.mu.Lock()
	writers := make([]*kafkago.Writer, 0, len(t.eventWriters))
	for _, w := range t.eventWriters {
		writers = append(writers, w)
	}
	t.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(t.source.Close())
	record(t.completed.Close())
	if t.dlq != nil {
		record(t.dlq.Close())
	}
	for _, w := range writers {
		record(w.Close())
	}
	return firstErr
}
