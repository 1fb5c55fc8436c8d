package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/sentinel"
	txcontext "sigil/pkg/platform/tx"
)

// Postgres stores mirror the memory stores. Mutations run inside the
// tx.SQLRunner transaction carried in context; row locks (FOR UPDATE) give
// the same validate-then-mutate atomicity the memory Execute provides.

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// PostgresIdentityStore persists identity records, the name index, and the
// sequential id counter.
type PostgresIdentityStore struct {
	db *sql.DB
}

func NewPostgresIdentityStore(db *sql.DB) *PostgresIdentityStore {
	return &PostgresIdentityStore{db: db}
}

// AllocateID reserves the next sequential id. Runs inside the mutation
// transaction; the MAX+1 read is safe because creations serialize on the
// ledger_height row lock taken at the start of every mutation.
func (s *PostgresIdentityStore) AllocateID(ctx context.Context) (id.IdentityID, error) {
	var next uint64
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM identities`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate identity id: %w", err)
	}
	return id.IdentityID(next), nil
}

// PeekNextID returns the id the next creation would receive.
func (s *PostgresIdentityStore) PeekNextID(ctx context.Context) (id.IdentityID, error) {
	return s.AllocateID(ctx)
}

// Insert stores a freshly minted identity.
func (s *PostgresIdentityStore) Insert(ctx context.Context, ident *models.Identity) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO identities (id, owner, name, bio, config, privileged, created_at, version,
			messages_sent, storage_writes, modules_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uint64(ident.ID), string(ident.Owner), ident.Name, ident.Bio, ident.Config,
		ident.Privileged, uint64(ident.CreatedAt), ident.Version,
		ident.Counters.MessagesSent, ident.Counters.StorageWrites, ident.Counters.ModulesActive,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

const identityColumns = `id, owner, name, bio, config, privileged, created_at, version,
	messages_sent, storage_writes, modules_active`

func (s *PostgresIdentityStore) scanIdentity(ctx context.Context, row *sql.Row) (*models.Identity, error) {
	var ident models.Identity
	var identityID, createdAt uint64
	var owner string
	err := row.Scan(&identityID, &owner, &ident.Name, &ident.Bio, &ident.Config,
		&ident.Privileged, &createdAt, &ident.Version,
		&ident.Counters.MessagesSent, &ident.Counters.StorageWrites, &ident.Counters.ModulesActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	ident.ID = id.IdentityID(identityID)
	ident.Owner = id.AccountID(owner)
	ident.CreatedAt = id.Height(createdAt)
	if err := s.loadScorers(ctx, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (s *PostgresIdentityStore) loadScorers(ctx context.Context, ident *models.Identity) error {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT account FROM identity_scorers WHERE identity_id = $1`, uint64(ident.ID))
	if err != nil {
		return fmt.Errorf("query scorers: %w", err)
	}
	defer rows.Close()
	ident.Scorers = make(map[id.AccountID]bool)
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return fmt.Errorf("scan scorer: %w", err)
		}
		ident.Scorers[id.AccountID(account)] = true
	}
	return rows.Err()
}

// FindByID returns the identity record.
func (s *PostgresIdentityStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, uint64(identityID))
	return s.scanIdentity(ctx, row)
}

// FindByName resolves a claimed name.
func (s *PostgresIdentityStore) FindByName(ctx context.Context, name string) (*models.Identity, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE name = $1 AND name <> ''`, name)
	return s.scanIdentity(ctx, row)
}

// Execute locks the row, runs validate-then-mutate, and writes back the
// full record with a bumped version.
func (s *PostgresIdentityStore) Execute(ctx context.Context, identityID id.IdentityID, validate func(*models.Identity) error, mutate func(*models.Identity)) (*models.Identity, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1 FOR UPDATE`, uint64(identityID))
	ident, err := s.scanIdentity(ctx, row)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(ident); err != nil {
			return nil, err
		}
	}
	mutate(ident)
	ident.Version++
	if err := s.writeBack(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

func (s *PostgresIdentityStore) writeBack(ctx context.Context, ident *models.Identity) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE identities SET owner = $2, name = $3, bio = $4, config = $5, version = $6,
			messages_sent = $7, storage_writes = $8, modules_active = $9
		WHERE id = $1`,
		uint64(ident.ID), string(ident.Owner), ident.Name, ident.Bio, ident.Config, ident.Version,
		ident.Counters.MessagesSent, ident.Counters.StorageWrites, ident.Counters.ModulesActive,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if _, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM identity_scorers WHERE identity_id = $1`, uint64(ident.ID)); err != nil {
		return fmt.Errorf("clear scorers: %w", err)
	}
	for account := range ident.Scorers {
		if _, err := execer(ctx, s.db).ExecContext(ctx,
			`INSERT INTO identity_scorers (identity_id, account) VALUES ($1, $2)`,
			uint64(ident.ID), string(account)); err != nil {
			return fmt.Errorf("insert scorer: %w", err)
		}
	}
	return nil
}

// Rename releases the old claim and asserts the new one in one statement
// set; the partial unique index turns races into sentinel.ErrConflict.
func (s *PostgresIdentityStore) Rename(ctx context.Context, identityID id.IdentityID, name string) (*models.Identity, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1 FOR UPDATE`, uint64(identityID))
	ident, err := s.scanIdentity(ctx, row)
	if err != nil {
		return nil, err
	}
	ident.ApplySetName(name)
	ident.Version++
	_, err = execer(ctx, s.db).ExecContext(ctx,
		`UPDATE identities SET name = $2, version = $3 WHERE id = $1`,
		uint64(identityID), name, ident.Version)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("rename identity: %w", err)
	}
	return ident, nil
}

// Count returns the number of minted identities.
func (s *PostgresIdentityStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// PostgresAccountStore persists per-account mint state and the whitelist.
type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

// Find returns the account state, zero-valued when never seen.
func (s *PostgresAccountStore) Find(ctx context.Context, account id.AccountID) (*models.AccountState, error) {
	state := &models.AccountState{Account: account}
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT minted, free_mint_used, whitelisted FROM accounts WHERE account = $1`,
		string(account)).Scan(&state.Minted, &state.FreeMintUsed, &state.Whitelisted)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return state, nil
}

// Execute upserts the row, locks it, and runs validate-then-mutate.
func (s *PostgresAccountStore) Execute(ctx context.Context, account id.AccountID, validate func(*models.AccountState) error, mutate func(*models.AccountState)) (*models.AccountState, error) {
	ex := execer(ctx, s.db)
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO accounts (account) VALUES ($1) ON CONFLICT DO NOTHING`, string(account)); err != nil {
		return nil, fmt.Errorf("ensure account row: %w", err)
	}
	state := &models.AccountState{Account: account}
	err := ex.QueryRowContext(ctx,
		`SELECT minted, free_mint_used, whitelisted FROM accounts WHERE account = $1 FOR UPDATE`,
		string(account)).Scan(&state.Minted, &state.FreeMintUsed, &state.Whitelisted)
	if err != nil {
		return nil, fmt.Errorf("lock account row: %w", err)
	}
	if validate != nil {
		if err := validate(state); err != nil {
			return nil, err
		}
	}
	mutate(state)
	if _, err := ex.ExecContext(ctx,
		`UPDATE accounts SET minted = $2, free_mint_used = $3, whitelisted = $4 WHERE account = $1`,
		string(account), state.Minted, state.FreeMintUsed, state.Whitelisted); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return state, nil
}

// PostgresMessageStore appends messages; the partial indices mirror the
// broadcast/channel addressing rules.
type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

// Append stores the message. Index membership follows from the partial
// indexes in the schema, so broadcasts are indexed in neither.
func (s *PostgresMessageStore) Append(ctx context.Context, msg models.Message) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO messages (from_id, to_id, channel, type, payload, sent_at, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uint64(msg.From), uint64(msg.To), msg.Channel, msg.Type, msg.Payload, msg.Timestamp, uint64(msg.Height))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

const messageColumns = `from_id, to_id, channel, type, payload, sent_at, height`

// ListByChannel returns the channel's messages in append order.
func (s *PostgresMessageStore) ListByChannel(ctx context.Context, channel uint32) ([]models.Message, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE channel = $1 AND channel <> 0 ORDER BY seq`, channel)
	if err != nil {
		return nil, fmt.Errorf("query channel messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByRecipient returns the recipient's messages in append order.
func (s *PostgresMessageStore) ListByRecipient(ctx context.Context, to id.IdentityID) ([]models.Message, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE to_id = $1 AND to_id <> 0 ORDER BY seq`, uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query recipient messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var from, to, height uint64
		if err := rows.Scan(&from, &to, &msg.Channel, &msg.Type, &msg.Payload, &msg.Timestamp, &height); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.From = id.IdentityID(from)
		msg.To = id.IdentityID(to)
		msg.Height = id.Height(height)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// PostgresStorageStore persists per-identity key-value slots.
type PostgresStorageStore struct {
	db *sql.DB
}

func NewPostgresStorageStore(db *sql.DB) *PostgresStorageStore {
	return &PostgresStorageStore{db: db}
}

// Put writes or overwrites a slot.
func (s *PostgresStorageStore) Put(ctx context.Context, slot models.StorageSlot) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO storage_slots (identity_id, key, value, height)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id, key) DO UPDATE SET value = $3, height = $4`,
		uint64(slot.Identity), slot.Key, slot.Value, uint64(slot.Height))
	if err != nil {
		return fmt.Errorf("put storage slot: %w", err)
	}
	return nil
}

// Find returns a slot or sentinel.ErrNotFound.
func (s *PostgresStorageStore) Find(ctx context.Context, identityID id.IdentityID, key string) (*models.StorageSlot, error) {
	slot := models.StorageSlot{Identity: identityID, Key: key}
	var height uint64
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT value, height FROM storage_slots WHERE identity_id = $1 AND key = $2`,
		uint64(identityID), key).Scan(&slot.Value, &height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find storage slot: %w", err)
	}
	slot.Height = id.Height(height)
	return &slot, nil
}

// PostgresScoreStore persists external scores.
type PostgresScoreStore struct {
	db *sql.DB
}

func NewPostgresScoreStore(db *sql.DB) *PostgresScoreStore {
	return &PostgresScoreStore{db: db}
}

// Set overwrites the score under the given key.
func (s *PostgresScoreStore) Set(ctx context.Context, score models.ExternalScore) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO external_scores (identity_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, key) DO UPDATE SET value = $3`,
		uint64(score.Identity), score.Key, score.Value)
	if err != nil {
		return fmt.Errorf("set external score: %w", err)
	}
	return nil
}

// List returns all external scores for an identity ordered by key.
func (s *PostgresScoreStore) List(ctx context.Context, identityID id.IdentityID) ([]models.ExternalScore, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT key, value FROM external_scores WHERE identity_id = $1 ORDER BY key`, uint64(identityID))
	if err != nil {
		return nil, fmt.Errorf("query external scores: %w", err)
	}
	defer rows.Close()
	var out []models.ExternalScore
	for rows.Next() {
		score := models.ExternalScore{Identity: identityID}
		if err := rows.Scan(&score.Key, &score.Value); err != nil {
			return nil, fmt.Errorf("scan external score: %w", err)
		}
		out = append(out, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external scores: %w", err)
	}
	return out, nil
}

// PostgresSettingsStore persists the registry's administrative switches
// in a singleton row.
type PostgresSettingsStore struct {
	db *sql.DB
}

func NewPostgresSettingsStore(db *sql.DB) *PostgresSettingsStore {
	return &PostgresSettingsStore{db: db}
}

// Get returns the current switches.
func (s *PostgresSettingsStore) Get(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT paused, whitelist_only FROM registry_settings`).
		Scan(&settings.Paused, &settings.WhitelistOnly)
	if err != nil {
		return models.Settings{}, fmt.Errorf("read registry settings: %w", err)
	}
	return settings, nil
}

// Execute locks the singleton row, mutates, and writes back.
func (s *PostgresSettingsStore) Execute(ctx context.Context, mutate func(*models.Settings)) (models.Settings, error) {
	ex := execer(ctx, s.db)
	var settings models.Settings
	err := ex.QueryRowContext(ctx,
		`SELECT paused, whitelist_only FROM registry_settings FOR UPDATE`).
		Scan(&settings.Paused, &settings.WhitelistOnly)
	if err != nil {
		return models.Settings{}, fmt.Errorf("lock registry settings: %w", err)
	}
	mutate(&settings)
	if _, err := ex.ExecContext(ctx,
		`UPDATE registry_settings SET paused = $1, whitelist_only = $2`,
		settings.Paused, settings.WhitelistOnly); err != nil {
		return models.Settings{}, fmt.Errorf("update registry settings: %w", err)
	}
	return settings, nil
}

// PostgresHeightStore is the ledger's logical clock. Advancing takes the
// row lock that serializes every mutation transaction.
type PostgresHeightStore struct {
	db *sql.DB
}

func NewPostgresHeightStore(db *sql.DB) *PostgresHeightStore {
	return &PostgresHeightStore{db: db}
}

// Current returns the latest committed height.
func (s *PostgresHeightStore) Current(ctx context.Context) (id.Height, error) {
	var height uint64
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT height FROM ledger_height`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("read ledger height: %w", err)
	}
	return id.Height(height), nil
}

// Advance increments the logical clock and returns the new height.
func (s *PostgresHeightStore) Advance(ctx context.Context) (id.Height, error) {
	var height uint64
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`UPDATE ledger_height SET height = height + 1 RETURNING height`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("advance ledger height: %w", err)
	}
	return id.Height(height), nil
}
