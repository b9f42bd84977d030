package engine

import (
	"covault/internal/engine/models"
	dErrors "covault/pkg/domain-errors"
)

// applyGovernance dispatches a quorum-approved governance action into the
// membership registry. This is the only path that mutates the registry; the
// engine is acting as its own caller. Must be called with the lock held.
//
// Registry preconditions (duplicate member, quorum bounds, removal safety)
// are evaluated here, against the registry as it stands at execution time.
func (e *Engine) applyGovernance(action models.GovernanceAction) error {
	switch action.Op {
	case models.GovAddMember:
		return e.registry.AddMember(action.Member)
	case models.GovRemoveMember:
		return e.registry.RemoveMember(action.Member)
	case models.GovSetQuorum:
		return e.registry.SetQuorum(action.Quorum)
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown governance op %q", action.Op)
	}
}
