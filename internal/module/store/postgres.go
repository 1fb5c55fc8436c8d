package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"sigil/internal/module/models"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/sentinel"
	txcontext "sigil/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS module_descriptors (
	key            TEXT PRIMARY KEY,
	capability_ref TEXT    NOT NULL,
	premium        BOOLEAN NOT NULL,
	premium_cost   BIGINT  NOT NULL,
	registered_at  BIGINT  NOT NULL
);

CREATE TABLE IF NOT EXISTS module_activations (
	identity_id  BIGINT  NOT NULL,
	key          TEXT    NOT NULL REFERENCES module_descriptors(key),
	active       BOOLEAN NOT NULL,
	activated_at BIGINT  NOT NULL,
	PRIMARY KEY (identity_id, key)
);
`

// EnsureSchema creates the catalog tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure module schema: %w", err)
	}
	return nil
}

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

// PostgresCatalogStore persists module descriptors and activation slots.
type PostgresCatalogStore struct {
	db *sql.DB
}

func NewPostgresCatalogStore(db *sql.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

// RegisterIfAvailable inserts the descriptor; a duplicate key surfaces as
// sentinel.ErrConflict.
func (s *PostgresCatalogStore) RegisterIfAvailable(ctx context.Context, desc *models.Descriptor) error {
	_, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO module_descriptors (key, capability_ref, premium, premium_cost, registered_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(desc.Key), desc.CapabilityRef, desc.Premium, uint64(desc.PremiumCost), uint64(desc.RegisteredAt))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("register module: %w", err)
	}
	return nil
}

// FindDescriptor returns a registered descriptor.
func (s *PostgresCatalogStore) FindDescriptor(ctx context.Context, key id.ModuleKey) (*models.Descriptor, error) {
	desc := &models.Descriptor{Key: key}
	var cost, registeredAt uint64
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT capability_ref, premium, premium_cost, registered_at
		FROM module_descriptors WHERE key = $1`, string(key)).
		Scan(&desc.CapabilityRef, &desc.Premium, &cost, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find module descriptor: %w", err)
	}
	desc.PremiumCost = id.Amount(cost)
	desc.RegisteredAt = id.Height(registeredAt)
	return desc, nil
}

// ListDescriptors returns every registered descriptor ordered by key.
func (s *PostgresCatalogStore) ListDescriptors(ctx context.Context) ([]models.Descriptor, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx, `
		SELECT key, capability_ref, premium, premium_cost, registered_at
		FROM module_descriptors ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query module descriptors: %w", err)
	}
	defer rows.Close()
	var out []models.Descriptor
	for rows.Next() {
		var desc models.Descriptor
		var key string
		var cost, registeredAt uint64
		if err := rows.Scan(&key, &desc.CapabilityRef, &desc.Premium, &cost, &registeredAt); err != nil {
			return nil, fmt.Errorf("scan module descriptor: %w", err)
		}
		desc.Key = id.ModuleKey(key)
		desc.PremiumCost = id.Amount(cost)
		desc.RegisteredAt = id.Height(registeredAt)
		out = append(out, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module descriptors: %w", err)
	}
	return out, nil
}

// CountActive returns the identity's current active-module count.
func (s *PostgresCatalogStore) CountActive(ctx context.Context, identityID id.IdentityID) (int, error) {
	var count int
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM module_activations WHERE identity_id = $1 AND active`,
		uint64(identityID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active modules: %w", err)
	}
	return count, nil
}

// IsActive reports whether the identity currently has the module active.
func (s *PostgresCatalogStore) IsActive(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) (bool, error) {
	var active bool
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT active FROM module_activations WHERE identity_id = $1 AND key = $2`,
		uint64(identityID), string(key)).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check module activation: %w", err)
	}
	return active, nil
}

// Activate flips the slot on; an already-active slot surfaces as
// sentinel.ErrInvalidState.
func (s *PostgresCatalogStore) Activate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey, height id.Height) error {
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO module_activations (identity_id, key, active, activated_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (identity_id, key) DO UPDATE SET active = TRUE, activated_at = $3
		WHERE NOT module_activations.active`,
		uint64(identityID), string(key), uint64(height))
	if err != nil {
		return fmt.Errorf("activate module: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate module rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

// Deactivate flips the slot off; a non-active slot surfaces as
// sentinel.ErrInvalidState.
func (s *PostgresCatalogStore) Deactivate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) error {
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE module_activations SET active = FALSE
		WHERE identity_id = $1 AND key = $2 AND active`,
		uint64(identityID), string(key))
	if err != nil {
		return fmt.Errorf("deactivate module: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate module rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}
