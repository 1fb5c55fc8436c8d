package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is append-only per entity kind; the name index and account mint
// state are the two uniqueness surfaces.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id          BIGINT PRIMARY KEY,
	owner       TEXT        NOT NULL,
	name        TEXT        NOT NULL DEFAULT '',
	bio         TEXT        NOT NULL DEFAULT '',
	config      BYTEA       NOT NULL DEFAULT ''::bytea,
	privileged  BOOLEAN     NOT NULL,
	created_at  BIGINT      NOT NULL,
	version     BIGINT      NOT NULL DEFAULT 0,
	messages_sent  BIGINT   NOT NULL DEFAULT 0,
	storage_writes BIGINT   NOT NULL DEFAULT 0,
	modules_active BIGINT   NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS identities_name_idx
	ON identities (name) WHERE name <> '';

CREATE TABLE IF NOT EXISTS identity_scorers (
	identity_id BIGINT NOT NULL REFERENCES identities(id),
	account     TEXT   NOT NULL,
	PRIMARY KEY (identity_id, account)
);

CREATE TABLE IF NOT EXISTS accounts (
	account        TEXT PRIMARY KEY,
	minted         BIGINT  NOT NULL DEFAULT 0,
	free_mint_used BOOLEAN NOT NULL DEFAULT FALSE,
	whitelisted    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS messages (
	seq        BIGSERIAL PRIMARY KEY,
	from_id    BIGINT NOT NULL,
	to_id      BIGINT NOT NULL,
	channel    BIGINT NOT NULL,
	type       BIGINT NOT NULL,
	payload    BYTEA  NOT NULL,
	sent_at    TIMESTAMPTZ NOT NULL,
	height     BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_channel_idx
	ON messages (channel, seq) WHERE channel <> 0;
CREATE INDEX IF NOT EXISTS messages_recipient_idx
	ON messages (to_id, seq) WHERE to_id <> 0;

CREATE TABLE IF NOT EXISTS storage_slots (
	identity_id BIGINT NOT NULL,
	key         TEXT   NOT NULL,
	value       BYTEA  NOT NULL,
	height      BIGINT NOT NULL,
	PRIMARY KEY (identity_id, key)
);

CREATE TABLE IF NOT EXISTS external_scores (
	identity_id BIGINT NOT NULL,
	key         TEXT   NOT NULL,
	value       BIGINT NOT NULL,
	PRIMARY KEY (identity_id, key)
);

CREATE TABLE IF NOT EXISTS registry_settings (
	singleton      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	paused         BOOLEAN NOT NULL DEFAULT FALSE,
	whitelist_only BOOLEAN NOT NULL DEFAULT FALSE
);
INSERT INTO registry_settings (singleton)
	VALUES (TRUE) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS ledger_height (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	height    BIGINT NOT NULL
);
INSERT INTO ledger_height (singleton, height)
	VALUES (TRUE, 0) ON CONFLICT DO NOTHING;
`

// EnsureSchema creates the ledger tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}
