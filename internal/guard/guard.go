// Package guard throttles identities that keep producing authorization
// failures. Five unauthorized rejections inside the window trip a temporary
// lockout for that identity; the engine itself stays untouched. Store errors
// fail open behind a circuit breaker so a throttle outage never locks
// legitimate members out of their own vault.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	audit "covault/pkg/platform/audit"
	"covault/pkg/platform/circuit"
	"covault/pkg/requestcontext"
)

const (
	defaultMaxFailures = 5
	defaultWindow      = time.Minute
	defaultLockout     = 15 * time.Minute
)

// Store tracks failure counts and lockouts per identity key.
type Store interface {
	// RecordFailure increments the failure count inside the window and
	// returns the new count.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error)
	// Lock marks the key locked for the given duration.
	Lock(ctx context.Context, key string, ttl time.Duration) error
	// IsLocked reports whether the key is locked and for how much longer.
	IsLocked(ctx context.Context, key string) (bool, time.Duration, error)
	// Clear drops the failure count and any lock for the key.
	Clear(ctx context.Context, key string) error
}

// AuditPublisher receives throttle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config tunes the throttle.
type Config struct {
	MaxFailures int
	Window      time.Duration
	Lockout     time.Duration
}

func defaultConfig() Config {
	return Config{
		MaxFailures: defaultMaxFailures,
		Window:      defaultWindow,
		Lockout:     defaultLockout,
	}
}

// Service is the abuse guard.
type Service struct {
	store   Store
	breaker *circuit.Breaker
	audit   AuditPublisher
	logger  *slog.Logger
	config  Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

// WithBreaker replaces the fail-open circuit breaker, mainly so tests can
// control its clock and cooldown.
func WithBreaker(breaker *circuit.Breaker) Option {
	return func(s *Service) {
		if breaker != nil {
			s.breaker = breaker
		}
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxFailures > 0 {
			s.config.MaxFailures = cfg.MaxFailures
		}
		if cfg.Window > 0 {
			s.config.Window = cfg.Window
		}
		if cfg.Lockout > 0 {
			s.config.Lockout = cfg.Lockout
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("guard store is required")
	}
	s := &Service{
		store:   store,
		breaker: circuit.New("guard-store", circuit.WithFailureThreshold(3)),
		config:  defaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Allow reports whether the identity may proceed. A locked identity gets the
// remaining lockout as retryAfter. Store failures fail open.
func (s *Service) Allow(ctx context.Context, identity string) (allowed bool, retryAfter time.Duration, err error) {
	if s.breaker.IsOpen() {
		return true, 0, nil
	}

	locked, remaining, err := s.store.IsLocked(ctx, identity)
	if err != nil {
		s.failOpen(ctx, "guard lock check failed", err)
		return true, 0, nil
	}
	s.breaker.RecordSuccess()

	if locked {
		return false, remaining, nil
	}
	return true, 0, nil
}

// RecordRejection notes one authorization failure for the identity. Crossing
// the threshold locks the identity out and emits an audit event.
func (s *Service) RecordRejection(ctx context.Context, identity string) {
	if s.breaker.IsOpen() {
		return
	}

	count, err := s.store.RecordFailure(ctx, identity, s.config.Window)
	if err != nil {
		s.failOpen(ctx, "guard failure count failed", err)
		return
	}
	s.breaker.RecordSuccess()

	if count < int64(s.config.MaxFailures) {
		return
	}

	if err := s.store.Lock(ctx, identity, s.config.Lockout); err != nil {
		s.failOpen(ctx, "guard lock failed", err)
		return
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "identity throttled",
			"identity", identity,
			"failures", count,
			"lockout", s.config.Lockout.String(),
		)
	}
	if s.audit != nil {
		event := audit.Event{
			Action:    string(audit.EventAuthThrottled),
			Category:  audit.CategorySecurity,
			Subject:   requestcontext.Principal(ctx),
			Reason:    identity,
			Timestamp: requestcontext.Now(ctx),
			RequestID: requestcontext.RequestID(ctx),
		}
		if err := s.audit.Emit(ctx, event); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
		}
	}
}

// Clear resets the identity's failure history, typically after a successful
// authorized operation.
func (s *Service) Clear(ctx context.Context, identity string) {
	if s.breaker.IsOpen() {
		return
	}
	if err := s.store.Clear(ctx, identity); err != nil {
		s.failOpen(ctx, "guard clear failed", err)
		return
	}
	s.breaker.RecordSuccess()
}

func (s *Service) failOpen(ctx context.Context, msg string, err error) {
	_, change := s.breaker.RecordFailure()
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, "error", err)
	if change.Opened {
		s.logger.WarnContext(ctx, "guard circuit opened; failing open until a probe reaches the store")
	}
}
