// Package service wraps the engine core with the ambient concerns of a
// running deployment: request-scoped time, audit emission, the durable
// journal, metrics, and tracing. Transport handlers talk to this layer, never
// to the engine directly.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"covault/internal/engine"
	enginemetrics "covault/internal/engine/metrics"
	"covault/internal/engine/models"
	"covault/internal/engine/store/journal"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
	"covault/pkg/requestcontext"
)

// Service orchestrates the vault lifecycle.
type Service struct {
	engine  *engine.Engine
	journal journal.Journal
	audit   *auditEmitter
	metrics *enginemetrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type serviceConfig struct {
	journal        journal.Journal
	logger         *slog.Logger
	auditPublisher AuditSink
	metrics        *enginemetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*serviceConfig)

// WithJournal sets the durable operation journal.
func WithJournal(j journal.Journal) Option {
	return func(c *serviceConfig) { c.journal = j }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = l }
}

// WithAuditPublisher sets the audit event sink.
func WithAuditPublisher(p AuditSink) Option {
	return func(c *serviceConfig) { c.auditPublisher = p }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *enginemetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// New builds a service around an engine. Every collaborator is optional; a
// bare service is a plain pass-through, which is what unit tests want.
func New(eng *engine.Engine, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	j := cfg.journal
	if j == nil {
		j = journal.NewInMemory()
	}
	s := &Service{
		engine:  eng,
		journal: j,
		audit:   newAuditEmitter(cfg.logger, cfg.auditPublisher),
		metrics: cfg.metrics,
		logger:  cfg.logger,
		tracer:  otel.Tracer("covault/engine"),
	}
	s.syncGauges()
	return s
}

// Submit proposes a new entry on behalf of a member.
func (s *Service) Submit(ctx context.Context, proposer id.Principal, target models.Target, value uint64, payload []byte) (models.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "vault.Submit")
	defer span.End()

	now := requestcontext.Now(ctx)
	snap, err := s.engine.Submit(proposer, target, value, payload, now)
	if err != nil {
		return models.Snapshot{}, s.reject(ctx, "submit", err)
	}

	s.appendJournal(ctx, journal.Record{
		Kind: journal.KindSubmit, Actor: proposer, Target: target,
		Value: value, Payload: payload, At: now,
	})
	s.audit.emitEntrySubmitted(ctx, proposer, snap)
	if s.metrics != nil {
		s.metrics.EntriesSubmitted.Inc()
	}
	span.SetAttributes(attribute.Int64("vault.entry_index", int64(snap.Index)))
	return snap, nil
}

// Confirm records a member's confirmation.
func (s *Service) Confirm(ctx context.Context, principal id.Principal, index id.EntryIndex) (models.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "vault.Confirm")
	defer span.End()

	snap, err := s.engine.Confirm(principal, index)
	if err != nil {
		return models.Snapshot{}, s.reject(ctx, "confirm", err)
	}

	s.appendJournal(ctx, journal.Record{
		Kind: journal.KindConfirm, Actor: principal, Index: index, At: requestcontext.Now(ctx),
	})
	s.audit.emitEntryConfirmed(ctx, principal, snap)
	if s.metrics != nil {
		s.metrics.Confirmations.Inc()
	}
	return snap, nil
}

// Revoke withdraws a member's confirmation.
func (s *Service) Revoke(ctx context.Context, principal id.Principal, index id.EntryIndex) (models.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "vault.Revoke")
	defer span.End()

	snap, err := s.engine.Revoke(principal, index)
	if err != nil {
		return models.Snapshot{}, s.reject(ctx, "revoke", err)
	}

	s.appendJournal(ctx, journal.Record{
		Kind: journal.KindRevoke, Actor: principal, Index: index, At: requestcontext.Now(ctx),
	})
	s.audit.emitConfirmationRevoked(ctx, principal, snap)
	if s.metrics != nil {
		s.metrics.Revocations.Inc()
	}
	return snap, nil
}

// Execute runs an authorized entry. An ExecutionFailed outcome consumed the
// entry's attempt: it is journaled and audited even though an error is
// returned to the caller.
func (s *Service) Execute(ctx context.Context, caller id.Principal, index id.EntryIndex) (engine.ExecutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "vault.Execute",
		trace.WithAttributes(attribute.Int64("vault.entry_index", int64(index))))
	defer span.End()

	start := time.Now()
	now := requestcontext.Now(ctx)

	result, err := s.engine.Execute(ctx, caller, index)
	if s.metrics != nil {
		s.metrics.ObserveExecute(start)
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExecutionFailed) {
			// The attempt was consumed: the executed flag flipped and
			// stays flipped. Record the failed outcome durably.
			s.appendJournal(ctx, journal.Record{
				Kind: journal.KindExecute, Actor: caller, Index: index, Succeeded: false, At: now,
			})
			s.audit.emitExecutionFailed(ctx, caller, index, err)
			if s.metrics != nil {
				s.metrics.ExecutionsFailed.Inc()
			}
			s.syncGauges()
			return engine.ExecutionResult{}, err
		}
		return engine.ExecutionResult{}, s.reject(ctx, "execute", err)
	}

	s.appendJournal(ctx, journal.Record{
		Kind: journal.KindExecute, Actor: caller, Index: index, Succeeded: true, At: now,
	})
	s.audit.emitEntryExecuted(ctx, caller, result)
	if s.metrics != nil {
		s.metrics.EntriesExecuted.Inc()
	}
	s.syncGauges()
	return result, nil
}

// Deposit credits the pool. Callers need not be members.
func (s *Service) Deposit(ctx context.Context, amount uint64) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "vault.Deposit")
	defer span.End()

	pool, err := s.engine.Deposit(amount)
	if err != nil {
		return 0, s.reject(ctx, "deposit", err)
	}

	s.appendJournal(ctx, journal.Record{
		Kind: journal.KindDeposit, Actor: requestcontext.Principal(ctx),
		Value: amount, At: requestcontext.Now(ctx),
	})
	s.audit.emitDepositReceived(ctx, amount)
	if s.metrics != nil {
		s.metrics.Deposits.Inc()
	}
	s.syncGauges()
	return pool, nil
}

// -----------------------------------------------------------------------------
// Read accessors
// -----------------------------------------------------------------------------

func (s *Service) Members(context.Context) []id.Principal { return s.engine.Members() }
func (s *Service) Quorum(context.Context) int             { return s.engine.Quorum() }
func (s *Service) Pool(context.Context) uint64            { return s.engine.Pool() }
func (s *Service) EntryCount(context.Context) int         { return s.engine.EntryCount() }

func (s *Service) Entry(_ context.Context, index id.EntryIndex) (models.Snapshot, error) {
	return s.engine.Entry(index)
}

func (s *Service) Entries(_ context.Context, offset, limit int) []models.Snapshot {
	return s.engine.Entries(offset, limit)
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// reject counts and logs a rejected operation, then passes the error through
// unchanged so transports see the original code.
func (s *Service) reject(ctx context.Context, op string, err error) error {
	code := string(dErrors.CodeOf(err))
	if s.metrics != nil {
		s.metrics.IncrementRejection(code)
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "operation rejected",
			"op", op,
			"code", code,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	return err
}

// appendJournal records an accepted mutation. A journal failure cannot undo
// engine state, so it is logged as loudly as possible instead of failing the
// caller; operators must treat it as a durability incident.
func (s *Service) appendJournal(ctx context.Context, record journal.Record) {
	if err := s.journal.Append(ctx, record); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "journal append failed; durable state is behind live state",
			"kind", string(record.Kind),
			"error", err,
		)
	}
}

func (s *Service) syncGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.MembersGauge.Set(float64(len(s.engine.Members())))
	s.metrics.QuorumGauge.Set(float64(s.engine.Quorum()))
	s.metrics.PoolGauge.Set(float64(s.engine.Pool()))
}
