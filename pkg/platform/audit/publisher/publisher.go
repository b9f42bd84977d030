package publisher

import (
	"context"

	audit "covault/pkg/platform/audit"
)

// Publisher hands audit events to the background worker over a bounded
// channel. Emission never blocks the hot path: when the buffer is full the
// event is counted as dropped and the caller proceeds. Losing an audit event
// under backpressure is preferable to stalling an execution that has already
// flipped engine state.
type Publisher struct {
	inbox   chan audit.Event
	dropped chan struct{}
}

// New creates a publisher with the given buffer capacity.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Publisher{
		inbox:   make(chan audit.Event, capacity),
		dropped: make(chan struct{}, 1),
	}
}

// Emit enqueues an event for persistence. Returns nil even when the event is
// dropped; audit failures must not fail the underlying operation.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	select {
	case p.inbox <- event:
	default:
		select {
		case p.dropped <- struct{}{}:
		default:
		}
	}
	return nil
}

// Events exposes the inbox for the worker.
func (p *Publisher) Events() <-chan audit.Event {
	return p.inbox
}

// Dropped reports (and clears) whether any event was dropped since the last
// call. The worker surfaces it as a counter.
func (p *Publisher) Dropped() bool {
	select {
	case <-p.dropped:
		return true
	default:
		return false
	}
}
