package handler

import (
	"time"

	"covault/internal/engine"
	"covault/internal/engine/models"
	id "covault/pkg/domain"
)

// TransactionResponse is the wire shape of a ledger entry.
type TransactionResponse struct {
	Index            id.EntryIndex `json:"index"`
	TargetKind       string        `json:"target_kind"`
	Destination      string        `json:"destination,omitempty"`
	Value            uint64        `json:"value"`
	Payload          []byte        `json:"payload,omitempty"`
	SubmittedBy      string        `json:"submitted_by"`
	SubmittedAt      time.Time     `json:"submitted_at"`
	Executed         bool          `json:"executed"`
	NumConfirmations int           `json:"num_confirmations"`
}

func toTransactionResponse(s models.Snapshot) TransactionResponse {
	return TransactionResponse{
		Index:            s.Index,
		TargetKind:       string(s.Target.Kind),
		Destination:      s.Target.Destination,
		Value:            s.Value,
		Payload:          s.Payload,
		SubmittedBy:      s.SubmittedBy.String(),
		SubmittedAt:      s.SubmittedAt,
		Executed:         s.Executed,
		NumConfirmations: s.NumConfirmations,
	}
}

// ListTransactionsResponse pages through the ledger.
type ListTransactionsResponse struct {
	Count        int                   `json:"count"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ExecuteResponse reports the outcome of a successful execution.
type ExecuteResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Pool        uint64              `json:"pool"`
	Governance  *GovernanceRequest  `json:"governance,omitempty"`
}

func toExecuteResponse(result engine.ExecutionResult) ExecuteResponse {
	resp := ExecuteResponse{
		Transaction: toTransactionResponse(result.Entry),
		Pool:        result.Pool,
	}
	if result.Governance != nil {
		resp.Governance = &GovernanceRequest{
			Op:     string(result.Governance.Op),
			Member: result.Governance.Member.String(),
			Quorum: result.Governance.Quorum,
		}
	}
	return resp
}

// MembersResponse lists the current membership in registration order.
type MembersResponse struct {
	Members []string `json:"members"`
	Quorum  int      `json:"quorum"`
}

// QuorumResponse reports the confirmation threshold.
type QuorumResponse struct {
	Quorum int `json:"quorum"`
}

// PoolResponse reports the pooled balance.
type PoolResponse struct {
	Pool uint64 `json:"pool"`
}
