// Package journal persists the engine's ordered operation stream.
//
// The engine is deterministic under a strictly serialized operation stream,
// so durability is an append-only journal: every accepted mutation is
// recorded after it commits, and startup replays the journal through the
// engine's own operations to reconstruct the exact pre-shutdown state.
// Execution records carry the external outcome so replay never re-invokes
// the executor.
package journal

import (
	"context"
	"fmt"
	"time"

	"covault/internal/engine"
	"covault/internal/engine/models"
	id "covault/pkg/domain"
)

// Kind names one journaled operation.
type Kind string

const (
	KindSubmit  Kind = "submit"
	KindConfirm Kind = "confirm"
	KindRevoke  Kind = "revoke"
	KindExecute Kind = "execute"
	KindDeposit Kind = "deposit"
)

// Record is one accepted mutation. Seq is assigned by the store and defines
// the replay order.
type Record struct {
	Seq   uint64
	Kind  Kind
	Actor id.Principal
	// Index is the ledger entry the record concerns. Unused for deposits.
	Index id.EntryIndex
	// Target, Value, and Payload are set for submissions; Value doubles as
	// the amount for deposits.
	Target  models.Target
	Value   uint64
	Payload []byte
	// Succeeded records the external outcome of an execution.
	Succeeded bool
	At        time.Time
}

// Journal is the append-only operation log.
//
// Error Contract:
//   - Append returns nil once the record is durable
//   - Replay invokes fn for every record in seq order and stops on the
//     first error fn returns
//   - Infrastructure failures are returned wrapped with context
type Journal interface {
	Append(ctx context.Context, record Record) error
	Replay(ctx context.Context, fn func(Record) error) error
}

// Restore replays a journal into a freshly constructed engine and returns
// the number of records applied.
func Restore(ctx context.Context, j Journal, eng *engine.Engine) (int, error) {
	applied := 0
	err := j.Replay(ctx, func(r Record) error {
		var err error
		switch r.Kind {
		case KindSubmit:
			_, err = eng.Submit(r.Actor, r.Target, r.Value, r.Payload, r.At)
		case KindConfirm:
			_, err = eng.Confirm(r.Actor, r.Index)
		case KindRevoke:
			_, err = eng.Revoke(r.Actor, r.Index)
		case KindExecute:
			err = eng.ApplyExecution(r.Actor, r.Index, r.Succeeded)
		case KindDeposit:
			_, err = eng.Deposit(r.Value)
		default:
			err = fmt.Errorf("unknown journal record kind %q", r.Kind)
		}
		if err != nil {
			return fmt.Errorf("apply journal record %d (%s): %w", r.Seq, r.Kind, err)
		}
		applied++
		return nil
	})
	if err != nil {
		return applied, err
	}
	return applied, nil
}
