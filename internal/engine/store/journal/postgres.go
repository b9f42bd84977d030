package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"covault/internal/engine/models"
	id "covault/pkg/domain"
)

// PostgresJournal persists the operation stream in a single append-only
// table. Seq comes from a bigserial, so replay order is insertion order.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a journal backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

// Migrate creates the journal table if it does not exist.
func (j *PostgresJournal) Migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vault_journal (
			seq         BIGSERIAL PRIMARY KEY,
			kind        TEXT        NOT NULL,
			actor       TEXT        NOT NULL DEFAULT '',
			entry_index BIGINT      NOT NULL DEFAULT 0,
			target_kind TEXT        NOT NULL DEFAULT '',
			destination TEXT        NOT NULL DEFAULT '',
			value       BIGINT      NOT NULL DEFAULT 0,
			payload     BYTEA,
			succeeded   BOOLEAN     NOT NULL DEFAULT FALSE,
			at          TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate vault_journal: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, record Record) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO vault_journal (kind, actor, entry_index, target_kind, destination, value, payload, succeeded, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		string(record.Kind),
		record.Actor.String(),
		int64(record.Index),
		string(record.Target.Kind),
		record.Target.Destination,
		int64(record.Value),
		record.Payload,
		record.Succeeded,
		record.At,
	)
	if err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Replay(ctx context.Context, fn func(Record) error) error {
	rows, err := j.pool.Query(ctx, `
		SELECT seq, kind, actor, entry_index, target_kind, destination, value, payload, succeeded, at
		FROM vault_journal
		ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          Record
			kind       string
			actor      string
			entryIndex int64
			targetKind string
			value      int64
		)
		if err := rows.Scan(&r.Seq, &kind, &actor, &entryIndex, &targetKind, &r.Target.Destination, &value, &r.Payload, &r.Succeeded, &r.At); err != nil {
			return fmt.Errorf("scan journal record: %w", err)
		}
		r.Kind = Kind(kind)
		r.Actor = id.Principal(actor)
		r.Index = id.EntryIndex(entryIndex)
		r.Target.Kind = models.TargetKind(targetKind)
		r.Value = uint64(value)
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate journal: %w", err)
	}
	return nil
}
