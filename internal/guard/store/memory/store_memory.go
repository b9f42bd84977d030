// Package memory holds guard state in process. Suitable for single-instance
// deployments and tests; multi-instance deployments want the redis store so
// lockouts are shared.
package memory

import (
	"context"
	"sync"
	"time"
)

type failureWindow struct {
	count   int64
	resetAt time.Time
}

type Store struct {
	mu       sync.Mutex
	failures map[string]*failureWindow
	locks    map[string]time.Time
	now      func() time.Time
}

func New() *Store {
	return &Store{
		failures: make(map[string]*failureWindow),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) RecordFailure(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.failures[key]
	if !ok || now.After(w.resetAt) {
		w = &failureWindow{resetAt: now.Add(window)}
		s.failures[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *Store) Lock(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[key] = s.now().Add(ttl)
	return nil
}

func (s *Store) IsLocked(_ context.Context, key string) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.locks[key]
	if !ok {
		return false, 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		delete(s.locks, key)
		return false, 0, nil
	}
	return true, remaining, nil
}

func (s *Store) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
	delete(s.locks, key)
	return nil
}
