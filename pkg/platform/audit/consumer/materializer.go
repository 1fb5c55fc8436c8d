package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sigil/internal/platform/kafka/consumer"
	id "sigil/pkg/domain"
	audit "sigil/pkg/platform/audit"
	auditpg "sigil/pkg/platform/audit/store/postgres"
)

// Materializer writes published events into ledger_events so the query
// side can serve per-identity history. AppendWithID is idempotent, which
// makes at-least-once delivery safe.
type Materializer struct {
	store  *auditpg.Store
	logger *slog.Logger
}

func NewMaterializer(store *auditpg.Store, logger *slog.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

// Handle implements TopicHandler.
func (m *Materializer) Handle(ctx context.Context, msg *consumer.Message) error {
	var payload auditpg.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		// A malformed payload will never parse on retry. Log and move on.
		m.logger.Error("malformed event payload, skipping", "topic", msg.Topic, "error", err)
		return nil
	}

	eventID, err := uuid.Parse(payload.ID)
	if err != nil {
		m.logger.Error("event payload has invalid id, skipping", "topic", msg.Topic, "error", err)
		return nil
	}

	timestamp, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
	if err != nil {
		timestamp = msg.Timestamp
	}

	event := audit.Event{
		Category:  audit.EventCategory(payload.Category),
		Timestamp: timestamp,
		Height:    id.Height(payload.Height),
		Identity:  id.IdentityID(payload.Identity),
		Account:   id.AccountID(payload.Account),
		Action:    payload.Action,
		Detail:    payload.Detail,
		Amount:    id.Amount(payload.Amount),
		RequestID: payload.RequestID,
	}
	if err := m.store.AppendWithID(ctx, eventID, event); err != nil {
		return fmt.Errorf("materialize event %s: %w", payload.ID, err)
	}
	return nil
}
