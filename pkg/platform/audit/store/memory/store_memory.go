package memory

import (
	"context"
	"sync"

	audit "covault/pkg/platform/audit"
)

// Store keeps audit events in memory for dev and tests.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *Store) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByAction filters the snapshot to one action kind. Test helper.
func (s *Store) ByAction(action audit.AuditEvent) []audit.Event {
	var out []audit.Event
	for _, e := range s.Events() {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}
