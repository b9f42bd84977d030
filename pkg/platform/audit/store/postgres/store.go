package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "covault/pkg/platform/audit"
	txcontext "covault/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox
// shipper. Kafka is the source of truth for downstream audit consumers.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the outbox table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outbox (
			id             UUID PRIMARY KEY,
			aggregate_type TEXT        NOT NULL,
			aggregate_id   TEXT        NOT NULL,
			event_type     TEXT        NOT NULL,
			payload        JSONB       NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			published_at   TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
// Field names match audit.Event for deserialization by consumers.
type outboxPayload struct {
	ID         string `json:"ID"`
	Category   string `json:"Category"`
	Timestamp  string `json:"Timestamp"`
	Actor      string `json:"Actor,omitempty"`
	Subject    string `json:"Subject,omitempty"`
	Action     string `json:"Action"`
	EntryIndex string `json:"EntryIndex,omitempty"`
	Value      uint64 `json:"Value,omitempty"`
	Quorum     int    `json:"Quorum,omitempty"`
	Reason     string `json:"Reason,omitempty"`
	RequestID  string `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories is the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Actor:     event.Actor.String(),
		Subject:   event.Subject.String(),
		Action:    event.Action,
		Value:     event.Value,
		Quorum:    event.Quorum,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	if event.HasEntry {
		payload.EntryIndex = event.EntryIndex.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	// Ledger events aggregate by entry index so consumers can rebuild one
	// entry's history in order; everything else aggregates by event ID.
	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.HasEntry {
		aggregateType = "entry"
		aggregateID = event.EntryIndex.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		eventID, aggregateType, aggregateID, event.Action, payloadBytes, event.Timestamp,
	); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}
