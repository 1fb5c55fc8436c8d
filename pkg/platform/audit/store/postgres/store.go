// Package postgres implements audit.Store with the transactional outbox
// pattern. Events are written to the outbox inside the same transaction as
// the ledger mutation they describe, then published to Kafka by the outbox
// worker. Kafka is the source of truth for downstream indexers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "sigil/pkg/domain"
	audit "sigil/pkg/platform/audit"
	txcontext "sigil/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id         UUID PRIMARY KEY,
	topic      TEXT        NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_events (
	id         UUID PRIMARY KEY,
	category   TEXT        NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	height     BIGINT      NOT NULL,
	identity_id BIGINT     NOT NULL,
	account    TEXT        NOT NULL,
	action     TEXT        NOT NULL,
	detail     TEXT        NOT NULL,
	amount     BIGINT      NOT NULL,
	request_id TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_events_identity_idx
	ON ledger_events (identity_id, timestamp);
`

// EnsureSchema creates the outbox and event tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Store writes events to the outbox and reads materialized events.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
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

// Payload is the JSON structure published to Kafka. Field names are part of
// the external indexer contract.
type Payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Height    uint64 `json:"height"`
	Identity  uint64 `json:"identity,omitempty"`
	Account   string `json:"account,omitempty"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	Amount    uint64 `json:"amount,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Append writes an event to the outbox for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Category
	if category == "" {
		category = audit.LedgerEvent(event.Action).Category()
	}

	payload := Payload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Height:    uint64(event.Height),
		Identity:  uint64(event.Identity),
		Account:   string(event.Account),
		Action:    event.Action,
		Detail:    event.Detail,
		Amount:    uint64(event.Amount),
		RequestID: event.RequestID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, topic, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		eventID, category.Topic(), payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID materializes an event consumed from Kafka into the
// ledger_events table. Idempotent via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, category, timestamp, height, identity_id,
			account, action, detail, amount, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		eventID, string(event.Category), event.Timestamp, uint64(event.Height),
		uint64(event.Identity), string(event.Account), event.Action, event.Detail,
		uint64(event.Amount), event.RequestID)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// ListByIdentity returns materialized events for one identity.
func (s *Store) ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, height, identity_id, account, action, detail, amount, request_id
		FROM ledger_events WHERE identity_id = $1 ORDER BY timestamp`, uint64(identityID))
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		var category, account string
		var height, identity, amount uint64
		err := rows.Scan(&category, &event.Timestamp, &height, &identity,
			&account, &event.Action, &event.Detail, &amount, &event.RequestID)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Height = id.Height(height)
		event.Identity = id.IdentityID(identity)
		event.Account = id.AccountID(account)
		event.Amount = id.Amount(amount)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

// OutboxEntry is one unpublished outbox row.
type OutboxEntry struct {
	ID      uuid.UUID
	Topic   string
	Payload []byte
}

// NextBatch returns up to limit unpublished entries in insertion order,
// locking them against concurrent workers.
func (s *Store) NextBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, payload FROM outbox
		ORDER BY created_at LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.Topic, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished deletes a published outbox row.
func (s *Store) MarkPublished(ctx context.Context, entryID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("delete outbox entry: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errors.New("outbox entry already removed")
	}
	return nil
}
