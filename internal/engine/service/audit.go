package service

//go:generate mockgen -source=audit.go -destination=mocks/mocks.go -package=mocks AuditSink

import (
	"context"
	"log/slog"

	"covault/internal/engine"
	"covault/internal/engine/models"
	id "covault/pkg/domain"
	audit "covault/pkg/platform/audit"
	"covault/pkg/requestcontext"
)

// AuditSink is what the audit emitter publishes to. Satisfied by the
// platform audit publisher; mocked in tests.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

// auditEmitter mirrors every accepted mutation to the structured log and the
// audit pipeline. Emission failures never fail the operation.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditSink
}

func newAuditEmitter(logger *slog.Logger, publisher AuditSink) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (a *auditEmitter) emit(ctx context.Context, event audit.Event) {
	event.Category = audit.AuditEvent(event.Action).Category()
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if a.logger != nil {
		a.logger.InfoContext(ctx, event.Action,
			"log_type", "audit",
			"actor", event.Actor.String(),
			"entry_index", event.EntryIndex.String(),
			"request_id", event.RequestID,
		)
	}
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Emit(ctx, event); err != nil && a.logger != nil {
		a.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

func (a *auditEmitter) emitEntrySubmitted(ctx context.Context, proposer id.Principal, snap models.Snapshot) {
	a.emit(ctx, audit.Event{
		Action:     string(audit.EventEntrySubmitted),
		Actor:      proposer,
		EntryIndex: snap.Index,
		HasEntry:   true,
		Value:      snap.Value,
	})
}

func (a *auditEmitter) emitEntryConfirmed(ctx context.Context, principal id.Principal, snap models.Snapshot) {
	a.emit(ctx, audit.Event{
		Action:     string(audit.EventEntryConfirmed),
		Actor:      principal,
		EntryIndex: snap.Index,
		HasEntry:   true,
	})
}

func (a *auditEmitter) emitConfirmationRevoked(ctx context.Context, principal id.Principal, snap models.Snapshot) {
	a.emit(ctx, audit.Event{
		Action:     string(audit.EventConfirmationRevoked),
		Actor:      principal,
		EntryIndex: snap.Index,
		HasEntry:   true,
	})
}

func (a *auditEmitter) emitEntryExecuted(ctx context.Context, caller id.Principal, result engine.ExecutionResult) {
	a.emit(ctx, audit.Event{
		Action:     string(audit.EventEntryExecuted),
		Actor:      caller,
		EntryIndex: result.Entry.Index,
		HasEntry:   true,
		Value:      result.Entry.Value,
	})
	if result.Governance == nil {
		return
	}
	// A governance execution also changed who controls the vault; that
	// gets its own compliance event.
	switch result.Governance.Op {
	case models.GovAddMember:
		a.emit(ctx, audit.Event{
			Action:  string(audit.EventMemberAdded),
			Actor:   caller,
			Subject: result.Governance.Member,
		})
	case models.GovRemoveMember:
		a.emit(ctx, audit.Event{
			Action:  string(audit.EventMemberRemoved),
			Actor:   caller,
			Subject: result.Governance.Member,
		})
	case models.GovSetQuorum:
		a.emit(ctx, audit.Event{
			Action: string(audit.EventQuorumChanged),
			Actor:  caller,
			Quorum: result.Governance.Quorum,
		})
	}
}

func (a *auditEmitter) emitExecutionFailed(ctx context.Context, caller id.Principal, index id.EntryIndex, cause error) {
	a.emit(ctx, audit.Event{
		Action:     string(audit.EventExecutionFailed),
		Actor:      caller,
		EntryIndex: index,
		HasEntry:   true,
		Reason:     cause.Error(),
	})
}

func (a *auditEmitter) emitDepositReceived(ctx context.Context, amount uint64) {
	a.emit(ctx, audit.Event{
		Action: string(audit.EventDepositReceived),
		Actor:  requestcontext.Principal(ctx),
		Value:  amount,
	})
}
