package engine

import (
	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// ApplyExecution re-applies a previously recorded execution outcome without
// invoking the external executor. Used only by journal replay: the engine is
// deterministic under a strictly ordered operation stream, so replaying the
// journal through the ordinary operations plus this method reconstructs the
// exact pre-shutdown state.
//
// The same guards run as in Execute; a guard failure here means the journal
// does not describe a state this engine could have been in.
func (e *Engine) ApplyExecution(caller id.Principal, index id.EntryIndex, succeeded bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.authorized(caller, index)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "journal replay diverged")
	}
	if entry.Executed() {
		return dErrors.New(dErrors.CodeInternal, "journal replay diverged: entry already terminal")
	}
	if entry.NumConfirmations() < e.registry.Quorum() {
		return dErrors.New(dErrors.CodeInternal, "journal replay diverged: quorum not met")
	}

	entry.MarkExecuted()
	if !succeeded {
		// A failed attempt left only the terminal flag behind.
		return nil
	}

	if entry.Target.Kind == models.TargetGovernance {
		action, aErr := models.DecodeGovernanceAction(entry.Payload)
		if aErr == nil {
			aErr = e.applyGovernance(action)
		}
		if aErr != nil {
			return dErrors.Wrap(aErr, dErrors.CodeInternal, "journal replay diverged: governance action failed")
		}
		return nil
	}

	if entry.Value > e.pool {
		return dErrors.New(dErrors.CodeInternal, "journal replay diverged: pool underflow")
	}
	e.pool -= entry.Value
	return nil
}
