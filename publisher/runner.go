package publisher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kmwllc/lucille-go/connector"
)

// TransportDrained reports whether a run's event transport has no more
// events in flight for runID. This is the third condition of the
// termination rule, needed because a transiently-zero pending count can
// occur between a publish and delivery of its CREATE.
type TransportDrained func(ctx context.Context, runID string) (bool, error)

// EventPollInterval bounds how long Run waits between reconciliation
// checks while no new event has arrived.
const EventPollInterval = 200 * time.Millisecond

// Run drives connector to completion and then blocks, polling events and
// folding them into p, until all three termination conditions hold:
// the connector has exited, p.IsReconciled(), and drained reports no events
// remain in flight for this run.
func Run(ctx context.Context, p *Publisher, conn connector.Connector, drained TransportDrained) error {
	connectorDone := make(chan error, 1)
	go func() {
		connectorDone <- conn.Run(ctx, p.Publish)
	}()

	var connectorErr error
	connectorFinished := false

	for {
		select {
		case connectorErr = <-connectorDone:
			connectorFinished = true
		default:
		}

		if connectorFinished && p.IsReconciled() {
			isDrained, err := drained(ctx, p.RunID())
			if err != nil {
				return fmt.Errorf("publisher: checking transport drained: %w", err)
			}
			if isDrained {
				break
			}
		}

		pollCtx, cancel := context.WithTimeout(ctx, EventPollInterval)
		_, err := p.PollEvent(pollCtx)
		cancel()
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("publisher: poll event error: %v", err)
		}
	}

	if connectorErr != nil {
		return fmt.Errorf("connector %s: %w", conn.Name(), connectorErr)
	}
	return nil
}
