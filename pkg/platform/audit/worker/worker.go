package worker

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "covault/pkg/platform/audit"
)

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "covault_audit_dropped_events_total",
	Help: "Audit events shed by the publisher under backpressure",
})

// DropSource reports whether the publisher shed events since the last check.
type DropSource interface {
	Dropped() bool
}

// Worker consumes audit events from the publisher and persists them. It keeps
// background processing testable without wiring queue implementations into
// domain code.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	drops  DropSource
	logger *slog.Logger
}

type Option func(*Worker)

// WithDropSource surfaces the publisher's drop signal as the dropped-events
// counter.
func WithDropSource(src DropSource) Option {
	return func(w *Worker) { w.drops = src }
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the inbox until the context is cancelled. Store failures are
// logged and skipped; the audit pipeline must not take the service down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				if w.logger != nil {
					w.logger.ErrorContext(ctx, "audit append failed",
						"action", event.Action,
						"error", err,
					)
				}
			}
			if w.drops != nil && w.drops.Dropped() {
				droppedEvents.Inc()
				if w.logger != nil {
					w.logger.WarnContext(ctx, "audit events dropped under backpressure")
				}
			}
		}
	}
}
