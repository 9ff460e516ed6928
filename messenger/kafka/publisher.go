package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// PublisherTransport implements publisher.Messenger on top of Kafka. It is
// constructed once per pipeline and bound to a specific run by Initialize,
// which is when the run's events topic first becomes known.
type PublisherTransport struct {
	cfg Config

	source *kafkago.Writer
	events *kafkago.Reader
}

// NewPublisherTransport connects to Kafka for the given pipeline. The
// returned transport is not usable until Initialize has been called.
func NewPublisherTransport(cfg Config) *PublisherTransport {
	return &PublisherTransport{cfg: cfg}
}

// Initialize opens the source-documents writer and the run's events reader.
func (t *PublisherTransport) Initialize(ctx context.Context, runID, pipelineName string) error {
	t.cfg.Pipeline = pipelineName
	t.source = newWriter(t.cfg, sourceTopic(pipelineName))
	t.events = newReader(t.cfg, eventsTopic(pipelineName, runID))
	return nil
}

// SendForProcessing publishes doc to the pipeline's source topic.
func (t *PublisherTransport) SendForProcessing(ctx context.Context, doc *document.Document) error {
	if t.source == nil {
		return fmt.Errorf("kafka: publisher transport not initialized")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("kafka: encoding document: %w", err)
	}
	return t.source.WriteMessages(ctx, kafkago.Message{Key: []byte(doc.ID()), Value: body})
}

// PollEvent fetches (and commits) the next lifecycle event for this run. A
// nil event with a nil error means the poll timed out with nothing
// available.
func (t *PublisherTransport) PollEvent(ctx context.Context) (*event.Event, error) {
	if t.events == nil {
		return nil, fmt.Errorf("kafka: publisher transport not initialized")
	}
	pollCtx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	msg, err := t.events.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	var evt event.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return nil, fmt.Errorf("kafka: decoding event: %w", err)
	}
	if err := t.events.CommitMessages(ctx, msg); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Close releases the writer and reader opened by Initialize.
func (t *PublisherTransport) Close() error {
	var firstErr error
	if t.source != nil {
		if err := t.source.Close(); err != nil {
			firstErr = err
		}
	}
	if t.events != nil {
		if err := t.events.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
