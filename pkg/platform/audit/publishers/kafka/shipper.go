// Package kafka ships audit outbox rows to a Kafka topic.
//
// The engine writes audit events to the Postgres outbox inside its own
// serialization boundary; this shipper moves them to Kafka asynchronously so
// downstream consumers (compliance archival, SIEM) never sit on the hot path.
package kafka

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config controls the shipper.
type Config struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// Shipper drains the outbox table into Kafka. Rows are marked published only
// after the produce is acknowledged, so delivery is at-least-once; consumers
// dedupe on the event ID embedded in the payload.
type Shipper struct {
	db     *sql.DB
	client *kgo.Client
	cfg    Config
	logger *slog.Logger
}

// New connects a producer and ensures the audit topic exists.
func New(ctx context.Context, db *sql.DB, cfg Config, logger *slog.Logger) (*Shipper, error) {
	if cfg.Topic == "" {
		cfg.Topic = "covault.audit"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, cfg.Topic); err != nil {
		// Topic may already exist; anything else surfaces on first produce.
		logger.DebugContext(ctx, "audit topic create", "topic", cfg.Topic, "error", err)
	}

	return &Shipper{db: db, client: client, cfg: cfg, logger: logger}, nil
}

// Run polls the outbox until the context is cancelled.
func (s *Shipper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	defer s.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.shipBatch(ctx); err != nil {
				s.logger.ErrorContext(ctx, "outbox ship failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	payload     []byte
}

func (s *Shipper) shipBatch(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var batch []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.aggregateID, &r.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}

	for _, r := range batch {
		record := &kgo.Record{
			// Keying by aggregate preserves per-entry ordering within a partition.
			Key:   []byte(r.aggregateID),
			Value: r.payload,
		}
		if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce audit record: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = $2`,
			time.Now().UTC(), r.id,
		); err != nil {
			return fmt.Errorf("mark outbox row published: %w", err)
		}
	}
	return nil
}
