// Package audit defines the structured audit surface of the engine.
//
// Every mutating operation of the vault emits exactly one event here. The
// event stream is the system's observability contract: external consumers
// reconstruct who proposed, confirmed, revoked, and executed what, and how
// the owner set evolved, from these records alone.
package audit

import (
	"context"
	"time"

	id "covault/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: everything
	// that moved value or changed who controls it. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// rejected access and throttling decisions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// Can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the principal performing the operation. Empty for deposits
	// from unauthenticated channels.
	Actor id.Principal
	// Subject is the principal affected by a governance operation, when
	// different from the actor.
	Subject id.Principal
	Action  string
	// EntryIndex is set for ledger operations. HasEntry distinguishes
	// entry 0 from "no entry".
	EntryIndex id.EntryIndex
	HasEntry   bool
	// Value carries the pooled-resource magnitude for submissions,
	// executions, and deposits.
	Value uint64
	// Quorum is the threshold after a quorum_changed event.
	Quorum int
	// Reason carries the rejection or failure detail for security events.
	Reason    string
	RequestID string
}

// AuditEvent names one auditable operation kind.
type AuditEvent string

const (
	// Ledger events.
	EventEntrySubmitted      AuditEvent = "entry_submitted"
	EventEntryConfirmed      AuditEvent = "entry_confirmed"
	EventConfirmationRevoked AuditEvent = "confirmation_revoked"
	EventEntryExecuted       AuditEvent = "entry_executed"
	EventExecutionFailed     AuditEvent = "execution_failed"

	// Governance events.
	EventMemberAdded   AuditEvent = "member_added"
	EventMemberRemoved AuditEvent = "member_removed"
	EventQuorumChanged AuditEvent = "quorum_changed"

	// Pool events.
	EventDepositReceived AuditEvent = "deposit_received"

	// Security events.
	EventAuthThrottled AuditEvent = "auth_throttled"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events: value movement and control changes.
	EventEntrySubmitted:  CategoryCompliance,
	EventEntryExecuted:   CategoryCompliance,
	EventExecutionFailed: CategoryCompliance,
	EventMemberAdded:     CategoryCompliance,
	EventMemberRemoved:   CategoryCompliance,
	EventQuorumChanged:   CategoryCompliance,
	EventDepositReceived: CategoryCompliance,

	// Security events.
	EventAuthThrottled: CategorySecurity,

	// Operations events: routine confirmation churn.
	EventEntryConfirmed:      CategoryOperations,
	EventConfirmationRevoked: CategoryOperations,
}

// Category returns the category for an audit event, defaulting to operations
// for unknown actions so nothing is silently dropped.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events. Implementations: in-memory (dev/tests) and
// the Postgres outbox that feeds the Kafka shipper.
type Store interface {
	Append(ctx context.Context, event Event) error
}
