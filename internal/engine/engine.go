// Package engine implements the quorum-gated transaction lifecycle and owner
// governance state machine.
//
// One Engine instance is a single logical authority: every mutating operation
// is serialized behind its mutex, so multi-step invariants (confirmation
// count consistency, quorum safety of removals, executed-before-external-call
// ordering) never interleave. The one place untrusted code runs is the
// external executor call during Execute; the entry is flipped to its terminal
// state and the lock released before that call, so a synchronous reentrant
// call into any engine method observes fully committed state and a terminal
// entry.
package engine

import (
	"context"
	"sync"
	"time"

	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// Delivery is what the engine hands to the external executor once an entry is
// authorized. The engine never interprets Destination or Payload.
type Delivery struct {
	Index       id.EntryIndex
	Destination string
	Value       uint64
	Payload     []byte
}

// Executor is the external capability that performs the actual effect of an
// authorized entry. A nil error means the action completed; any error is
// reported to the caller as an execution failure that consumed the entry's
// one authorized attempt.
//
// Implementations must assume they are called outside the engine's lock and
// may synchronously call back into the engine.
type Executor interface {
	Attempt(ctx context.Context, d Delivery) error
}

// Config carries the initial state of a new engine.
type Config struct {
	Members  []id.Principal
	Quorum   int
	Executor Executor
}

// Engine owns the membership registry, the transaction ledger, and the pooled
// balance. Callers obtain a handle explicitly; there is no ambient singleton.
type Engine struct {
	mu       sync.Mutex
	registry *models.Registry
	entries  []*models.Entry
	pool     uint64
	executor Executor
}

// New creates an engine with a validated initial owner set and quorum.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "executor is required")
	}
	registry, err := models.NewRegistry(cfg.Members, cfg.Quorum)
	if err != nil {
		return nil, err
	}
	return &Engine{registry: registry, executor: cfg.Executor}, nil
}

// Submit appends a new entry with an empty confirmation set and returns its
// snapshot. The proposer must be a current member. Governance entries carry
// their action in the payload and no value.
func (e *Engine) Submit(proposer id.Principal, target models.Target, value uint64, payload []byte, now time.Time) (models.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsMember(proposer) {
		return models.Snapshot{}, dErrors.Newf(dErrors.CodeUnauthorized, "%s is not a member", proposer)
	}
	if err := target.Validate(); err != nil {
		return models.Snapshot{}, err
	}
	if value > models.MaxValue {
		return models.Snapshot{}, dErrors.Newf(dErrors.CodeBadRequest, "value exceeds the ledger bound %d", models.MaxValue)
	}
	if target.Kind == models.TargetGovernance {
		if _, err := models.DecodeGovernanceAction(payload); err != nil {
			return models.Snapshot{}, err
		}
		if value != 0 {
			return models.Snapshot{}, dErrors.New(dErrors.CodeBadRequest, "governance entries carry no value")
		}
	}

	entry := models.NewEntry(id.EntryIndex(len(e.entries)), target, value, payload, proposer, now)
	e.entries = append(e.entries, entry)
	return entry.Snapshot(), nil
}

// Confirm adds principal's confirmation to the entry.
func (e *Engine) Confirm(principal id.Principal, index id.EntryIndex) (models.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.authorized(principal, index)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := entry.Confirm(principal); err != nil {
		return models.Snapshot{}, err
	}
	return entry.Snapshot(), nil
}

// Revoke withdraws principal's confirmation from a pre-execution entry.
func (e *Engine) Revoke(principal id.Principal, index id.EntryIndex) (models.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.authorized(principal, index)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := entry.Revoke(principal); err != nil {
		return models.Snapshot{}, err
	}
	return entry.Snapshot(), nil
}

// ExecutionResult reports what executing an entry did.
type ExecutionResult struct {
	Entry models.Snapshot
	// Governance is set when the entry mutated the membership registry.
	Governance *models.GovernanceAction
	// Pool is the pooled balance after execution.
	Pool uint64
}

// Execute runs an authorized entry exactly once.
//
// The quorum threshold is evaluated here, against the registry as it stands
// now, not as it stood when confirmations were collected: raising the
// threshold can retroactively make a confirmable entry non-executable, and
// lowering it the reverse. That dynamic re-evaluation is intentional.
//
// The entry is marked executed before the external executor is invoked. If
// the executor fails, the flag is not rolled back: a failed external action
// still consumed the proposal's one authorized attempt, and retry requires a
// fresh proposal. The pool reservation is the sole state that is refunded on
// failure.
func (e *Engine) Execute(ctx context.Context, caller id.Principal, index id.EntryIndex) (ExecutionResult, error) {
	e.mu.Lock()

	entry, err := e.authorized(caller, index)
	if err != nil {
		e.mu.Unlock()
		return ExecutionResult{}, err
	}
	if entry.Executed() {
		e.mu.Unlock()
		return ExecutionResult{}, dErrors.Newf(dErrors.CodeAlreadyExecuted, "entry %s is terminal", index)
	}
	if entry.NumConfirmations() < e.registry.Quorum() {
		e.mu.Unlock()
		return ExecutionResult{}, dErrors.Newf(dErrors.CodeQuorumNotMet,
			"entry %s has %d of %d required confirmations", index, entry.NumConfirmations(), e.registry.Quorum())
	}

	// The state flip happens before anything else runs. A reentrant call
	// into any mutating entry point now fails AlreadyExecuted.
	entry.MarkExecuted()

	if entry.Target.Kind == models.TargetGovernance {
		// Governance is a same-process call into the registry, dispatched
		// while the operation still holds the lock. No external code runs.
		action, aErr := models.DecodeGovernanceAction(entry.Payload)
		if aErr == nil {
			aErr = e.applyGovernance(action)
		}
		pool := e.pool
		e.mu.Unlock()
		if aErr != nil {
			return ExecutionResult{}, dErrors.Wrap(aErr, dErrors.CodeExecutionFailed, "governance action failed")
		}
		return ExecutionResult{Entry: entry.Snapshot(), Governance: &action, Pool: pool}, nil
	}

	// Reserve the value before releasing the lock so a concurrent or
	// reentrant execution cannot spend the same funds twice.
	if entry.Value > e.pool {
		e.mu.Unlock()
		return ExecutionResult{}, dErrors.Newf(dErrors.CodeExecutionFailed,
			"pool balance %d below entry value %d", e.pool, entry.Value)
	}
	e.pool -= entry.Value
	delivery := Delivery{
		Index:       entry.Index,
		Destination: entry.Target.Destination,
		Value:       entry.Value,
		Payload:     entry.Payload,
	}
	e.mu.Unlock()

	if err := e.executor.Attempt(ctx, delivery); err != nil {
		e.mu.Lock()
		e.pool += entry.Value
		e.mu.Unlock()
		return ExecutionResult{}, dErrors.Wrap(err, dErrors.CodeExecutionFailed, "executor reported failure")
	}

	e.mu.Lock()
	result := ExecutionResult{Entry: entry.Snapshot(), Pool: e.pool}
	e.mu.Unlock()
	return result, nil
}

// Deposit increases the pooled balance. Any actor may fund the pool at any
// time; deposits are not ledger entries.
func (e *Engine) Deposit(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "deposit amount must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// The pool never exceeds MaxValue, so the sum cannot wrap uint64.
	if amount > models.MaxValue-e.pool {
		return 0, dErrors.Newf(dErrors.CodeConflict, "deposit would push the pool past %d", models.MaxValue)
	}
	e.pool += amount
	return e.pool, nil
}

// authorized resolves an entry for a member caller. Must be called with the
// lock held.
func (e *Engine) authorized(principal id.Principal, index id.EntryIndex) (*models.Entry, error) {
	if !e.registry.IsMember(principal) {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "%s is not a member", principal)
	}
	if uint64(index) >= uint64(len(e.entries)) {
		return nil, dErrors.Newf(dErrors.CodeNoSuchEntry, "no entry at index %s", index)
	}
	return e.entries[index], nil
}

// -----------------------------------------------------------------------------
// Read accessors (no side effects, any caller)
// -----------------------------------------------------------------------------

// Members returns the current owner set in insertion order.
func (e *Engine) Members() []id.Principal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Members()
}

// Quorum returns the current confirmation threshold.
func (e *Engine) Quorum() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Quorum()
}

// Pool returns the current pooled balance.
func (e *Engine) Pool() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

// EntryCount returns the total number of ledger entries.
func (e *Engine) EntryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Entry returns the snapshot of one entry by index.
func (e *Engine) Entry(index id.EntryIndex) (models.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if uint64(index) >= uint64(len(e.entries)) {
		return models.Snapshot{}, dErrors.Newf(dErrors.CodeNoSuchEntry, "no entry at index %s", index)
	}
	return e.entries[index].Snapshot(), nil
}

// Entries returns a page of entry snapshots in ledger order.
func (e *Engine) Entries(offset, limit int) []models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if offset < 0 || offset >= len(e.entries) {
		return nil
	}
	end := len(e.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]models.Snapshot, 0, end-offset)
	for _, entry := range e.entries[offset:end] {
		out = append(out, entry.Snapshot())
	}
	return out
}
