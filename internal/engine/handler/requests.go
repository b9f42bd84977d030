package handler

import (
	"covault/internal/engine/models"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// GovernanceRequest describes a change to the vault's own membership.
type GovernanceRequest struct {
	Op     string `json:"op"`
	Member string `json:"member,omitempty"`
	Quorum int    `json:"quorum,omitempty"`
}

// SubmitRequest proposes a new transaction.
type SubmitRequest struct {
	TargetKind  string             `json:"target_kind"`
	Destination string             `json:"destination,omitempty"`
	Value       uint64             `json:"value"`
	Payload     []byte             `json:"payload,omitempty"`
	Governance  *GovernanceRequest `json:"governance,omitempty"`
}

// target translates the wire shape into the domain target and payload.
func (r SubmitRequest) target() (models.Target, []byte, error) {
	switch models.TargetKind(r.TargetKind) {
	case models.TargetExternal:
		if r.Governance != nil {
			return models.Target{}, nil, dErrors.New(dErrors.CodeBadRequest, "external transactions take no governance block")
		}
		return models.ExternalTarget(r.Destination), r.Payload, nil

	case models.TargetGovernance:
		if r.Governance == nil {
			return models.Target{}, nil, dErrors.New(dErrors.CodeBadRequest, "governance transactions require a governance block")
		}
		var member id.Principal
		if r.Governance.Member != "" {
			parsed, err := id.ParsePrincipal(r.Governance.Member)
			if err != nil {
				return models.Target{}, nil, err
			}
			member = parsed
		}
		action := models.GovernanceAction{
			Op:     models.GovernanceOp(r.Governance.Op),
			Member: member,
			Quorum: r.Governance.Quorum,
		}
		if err := action.Validate(); err != nil {
			return models.Target{}, nil, err
		}
		return models.GovernanceTarget(), action.Encode(), nil

	default:
		return models.Target{}, nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown target kind %q", r.TargetKind)
	}
}

// DepositRequest credits the pooled balance.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}
