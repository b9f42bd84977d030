package models

import (
	"encoding/json"
	"math"
	"time"

	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// MaxValue bounds entry values and the pooled balance. The bound keeps every
// amount representable in the journal's signed BIGINT columns.
const MaxValue = uint64(math.MaxInt64)

// TargetKind distinguishes externally-delivered payloads from internal
// governance calls. Both flow through the identical quorum-gated execute
// path; only the final dispatch differs.
type TargetKind string

const (
	TargetExternal   TargetKind = "external"
	TargetGovernance TargetKind = "governance"
)

// GovernanceOp names one mutation of the membership registry.
type GovernanceOp string

const (
	GovAddMember    GovernanceOp = "add_member"
	GovRemoveMember GovernanceOp = "remove_member"
	GovSetQuorum    GovernanceOp = "set_quorum"
)

// GovernanceAction is the decoded payload of a governance entry.
type GovernanceAction struct {
	Op     GovernanceOp `json:"op"`
	Member id.Principal `json:"member,omitempty"`
	Quorum int          `json:"quorum,omitempty"`
}

// Validate checks the action's shape. State-dependent rules (duplicate
// member, quorum bounds against the live set) are checked at execution time
// against the then-current registry, not here.
func (a GovernanceAction) Validate() error {
	switch a.Op {
	case GovAddMember, GovRemoveMember:
		if a.Member.IsNil() {
			return dErrors.New(dErrors.CodeInvalidPrincipal, "governance action requires a member identity")
		}
	case GovSetQuorum:
		if a.Quorum < 1 {
			return dErrors.New(dErrors.CodeInvalidQuorum, "quorum must be at least 1")
		}
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown governance op %q", a.Op)
	}
	return nil
}

// Encode serializes the action as the entry payload, so governance entries
// round-trip through the journal like any other entry.
func (a GovernanceAction) Encode() []byte {
	b, _ := json.Marshal(a)
	return b
}

// DecodeGovernanceAction parses a governance payload.
func DecodeGovernanceAction(payload []byte) (GovernanceAction, error) {
	var a GovernanceAction
	if err := json.Unmarshal(payload, &a); err != nil {
		return GovernanceAction{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed governance payload")
	}
	if err := a.Validate(); err != nil {
		return GovernanceAction{}, err
	}
	return a, nil
}

// Target describes what a ledger entry does once executed: either an opaque
// delivery to an external destination, or a call into the engine's own
// governance surface.
type Target struct {
	Kind TargetKind `json:"kind"`
	// Destination is the opaque external descriptor. Set for external targets.
	Destination string `json:"destination,omitempty"`
}

// ExternalTarget builds a delivery target.
func ExternalTarget(destination string) Target {
	return Target{Kind: TargetExternal, Destination: destination}
}

// GovernanceTarget builds a target for the engine's own registry.
func GovernanceTarget() Target {
	return Target{Kind: TargetGovernance}
}

// Validate checks target shape at submission time.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetExternal:
		if t.Destination == "" {
			return dErrors.New(dErrors.CodeBadRequest, "external target requires a destination")
		}
	case TargetGovernance:
		if t.Destination != "" {
			return dErrors.New(dErrors.CodeBadRequest, "governance target takes no destination")
		}
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown target kind %q", t.Kind)
	}
	return nil
}

// Entry is one proposed action tracked from submission to terminal
// execution. Entries are never deleted; the ledger is an append-only audit
// log.
type Entry struct {
	Index       id.EntryIndex
	Target      Target
	Value       uint64
	Payload     []byte
	SubmittedBy id.Principal
	SubmittedAt time.Time

	confirmations map[id.Principal]struct{}
	executed      bool
}

// NewEntry creates an entry with an empty confirmation set.
func NewEntry(index id.EntryIndex, target Target, value uint64, payload []byte, proposer id.Principal, now time.Time) *Entry {
	return &Entry{
		Index:         index,
		Target:        target,
		Value:         value,
		Payload:       payload,
		SubmittedBy:   proposer,
		SubmittedAt:   now,
		confirmations: make(map[id.Principal]struct{}),
	}
}

// Executed reports whether the entry is terminal.
func (e *Entry) Executed() bool {
	return e.executed
}

// NumConfirmations returns the count of distinct confirming principals.
func (e *Entry) NumConfirmations() int {
	return len(e.confirmations)
}

// HasConfirmed reports whether p currently confirms the entry.
func (e *Entry) HasConfirmed(p id.Principal) bool {
	_, ok := e.confirmations[p]
	return ok
}

// Confirm records p's confirmation. Terminal entries accept no further
// confirmation.
func (e *Entry) Confirm(p id.Principal) error {
	if e.executed {
		return dErrors.Newf(dErrors.CodeAlreadyExecuted, "entry %s is terminal", e.Index)
	}
	if _, ok := e.confirmations[p]; ok {
		return dErrors.Newf(dErrors.CodeAlreadyConfirmed, "%s already confirmed entry %s", p, e.Index)
	}
	e.confirmations[p] = struct{}{}
	return nil
}

// Revoke withdraws p's confirmation. Always permitted pre-execution,
// regardless of the count relative to quorum: an entry may legitimately drop
// below quorum after having reached it and become executable again later.
func (e *Entry) Revoke(p id.Principal) error {
	if e.executed {
		return dErrors.Newf(dErrors.CodeAlreadyExecuted, "entry %s is terminal", e.Index)
	}
	if _, ok := e.confirmations[p]; !ok {
		return dErrors.Newf(dErrors.CodeNotConfirmed, "%s has not confirmed entry %s", p, e.Index)
	}
	delete(e.confirmations, p)
	return nil
}

// MarkExecuted flips the entry to its terminal state. Monotonic: once set it
// is never reset, even when the external action subsequently fails.
func (e *Entry) MarkExecuted() {
	e.executed = true
}

// Snapshot is the read-only view of an entry exposed by accessors.
type Snapshot struct {
	Index            id.EntryIndex `json:"index"`
	Target           Target        `json:"target"`
	Value            uint64        `json:"value"`
	Payload          []byte        `json:"payload,omitempty"`
	SubmittedBy      id.Principal  `json:"submitted_by"`
	SubmittedAt      time.Time     `json:"submitted_at"`
	Executed         bool          `json:"executed"`
	NumConfirmations int           `json:"num_confirmations"`
}

// Snapshot captures the entry's current state for read accessors.
func (e *Entry) Snapshot() Snapshot {
	return Snapshot{
		Index:            e.Index,
		Target:           e.Target,
		Value:            e.Value,
		Payload:          e.Payload,
		SubmittedBy:      e.SubmittedBy,
		SubmittedAt:      e.SubmittedAt,
		Executed:         e.executed,
		NumConfirmations: len(e.confirmations),
	}
}
