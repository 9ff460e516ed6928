package kafka

import (
	"context"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// IndexerTransport implements messenger.IndexerMessenger on top of Kafka.
type IndexerTransport struct {
	cfg       Config
	completed *kafkago.Reader

	mu           sync.Mutex
	eventWriters map[string]*kafkago.Writer
}

// NewIndexerTransport connects to the completed-documents topic for the
// given pipeline.
func NewIndexerTransport(cfg Config) *IndexerTransport {
	return &IndexerTransport{
		cfg:          cfg,
		completed:    newReader(cfg, completedTopic(cfg.Pipeline)),
		eventWriters: make(map[string]*kafkago.Writer),
	}
}

func (t *IndexerTransport) eventWriter(runID string) *kafkago.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.eventWriters[runID]
	if !ok {
		w = newWriter(t.cfg, eventsTopic(t.cfg.Pipeline, runID))
		t.eventWriters[runID] = w
	}
	return w
}

// PollCompleted fetches (and immediately commits) the next completed
// document, returning the Kafka offset it was read at as the external
// version for optional document versioning. Committing on receipt is
// safe here because a failure to index surfaces as a FAIL event rather
// than a redelivery.
func (t *IndexerTransport) PollCompleted(ctx context.Context) (*document.Document, int64, error) {
	doc, msg, err := pollDocument(ctx, t.completed)
	if doc == nil || err != nil {
		return nil, 0, err
	}
	if err := t.completed.CommitMessages(ctx, msg); err != nil {
		return nil, 0, err
	}
	return doc, msg.Offset, nil
}

// SendEvent publishes an Event to its run's events topic.
func (t *IndexerTransport) SendEvent(ctx context.Context, evt event.Event) error {
	return writeEvent(ctx, t.eventWriter, evt)
}

// Close releases the reader and every event writer this transport opened.
func (t *IndexerTransport) Close() error {
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
	record(t.completed.Close())
	for _, w := range writers {
		record(w.Close())
	}
	return firstErr
}
