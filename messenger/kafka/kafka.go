// Package kafka implements the Messenger transports on top of
// segmentio/kafka-go: manual offset commit, one reader per topic, graceful
// Close(), and a simple poll-one-message-at-a-time surface that satisfies
// messenger.WorkerMessenger, messenger.IndexerMessenger and
// publisher.Messenger.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/event"
)

// PollTimeout bounds how long a single poll call waits for a message
// before returning (nil, nil).
const PollTimeout = 500 * time.Millisecond

// Config carries the connection details shared by every transport built on
// top of this package.
type Config struct {
	Brokers      []string
	Pipeline     string
	GroupID      string
	DeadLetterOn bool
}

func newReader(cfg Config, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
}

func newWriter(cfg Config, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:     kafkago.TCP(cfg.Brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}
}

func pollDocument(ctx context.Context, reader *kafkago.Reader) (*document.Document, kafkago.Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	msg, err := reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, kafkago.Message{}, nil
		}
		return nil, kafkago.Message{}, err
	}
	doc, err := document.FromJSON(msg.Value)
	if err != nil {
		return nil, msg, fmt.Errorf("kafka: decoding document: %w", err)
	}
	return doc, msg, nil
}

func writeEvent(ctx context.Context, writerFor func(runID string) *kafkago.Writer, evt event.Event) error {
	w := writerFor(evt.RunID)
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: encoding event: %w", err)
	}
	return w.WriteMessages(ctx, kafkago.Message{Key: []byte(evt.DocumentID), Value: body})
}
