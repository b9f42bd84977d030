// Package executor provides delivery capabilities for authorized entries.
// The engine decides WHETHER an entry runs; an executor decides HOW its
// effect reaches the outside world. Destinations are namespaced strings such
// as "treasury:ops" or "webhook:https://partner.example/hook", routed by a
// Dispatcher.
package executor

import (
	"context"
	"fmt"
	"strings"

	"covault/internal/engine"
)

// Dispatcher routes deliveries to the executor registered for the
// destination's scheme (the part before the first colon).
type Dispatcher struct {
	schemes map[string]engine.Executor
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{schemes: make(map[string]engine.Executor)}
}

// Register binds a scheme to an executor. Later registrations win.
func (d *Dispatcher) Register(scheme string, exec engine.Executor) *Dispatcher {
	d.schemes[strings.ToLower(scheme)] = exec
	return d
}

func (d *Dispatcher) Attempt(ctx context.Context, delivery engine.Delivery) error {
	scheme, _, ok := strings.Cut(delivery.Destination, ":")
	if !ok {
		return fmt.Errorf("destination %q has no scheme", delivery.Destination)
	}
	exec, ok := d.schemes[strings.ToLower(scheme)]
	if !ok {
		return fmt.Errorf("no executor registered for scheme %q", scheme)
	}
	return exec.Attempt(ctx, delivery)
}
