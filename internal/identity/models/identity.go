package models

import (
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/internal/reputation"
)

// Domain bounds. These are validated before any state mutation so a failed
// operation leaves no partial effect.
const (
	// NameMaxLen bounds identity names in bytes.
	NameMaxLen = 32
	// BioMaxLen bounds identity bios in bytes.
	BioMaxLen = 256
	// ConfigLen is the fixed visual configuration length:
	// [shape, pR, pG, pB, sR, sG, sB, symbol, pattern].
	ConfigLen = 9
	// MintCapPerAccount is the lifetime creation cap per external account.
	// Admin mints bypass it.
	MintCapPerAccount = 3
	// StorageKeyMaxLen and StorageValueMaxLen bound storage slots.
	StorageKeyMaxLen   = 64
	StorageValueMaxLen = 1024
	// MessagePayloadMaxLen bounds message payloads.
	MessagePayloadMaxLen = 2048
)

// Module slot capacity by privilege tier.
const (
	ModuleCapacityPrivileged = 8
	ModuleCapacityStandard   = 5
)

// Identity is the aggregate root of the registry.
//
// Invariants:
//   - ID is sequential, assigned once, never reused; the record is immortal
//   - Privileged is fixed forever at creation from the assigned id
//   - Name is globally unique while claimed; empty means unclaimed
//   - Counters only increase, except the modules-active decrement on an
//     explicit deactivation
//   - Ownership transfer mutates Owner only
type Identity struct {
	ID         id.IdentityID       `json:"id"`
	Owner      id.AccountID        `json:"owner"`
	Name       string              `json:"name"`
	Bio        string              `json:"bio"`
	Config     []byte              `json:"config"`
	Privileged bool                `json:"privileged"`
	CreatedAt  id.Height           `json:"created_at"`
	Version    uint64              `json:"version"`
	Counters   reputation.Counters `json:"counters"`

	// Scorers holds accounts granted permission to write external scores.
	Scorers map[id.AccountID]bool `json:"scorers,omitempty"`
}

// NewIdentity constructs a freshly minted identity. Name and bio start
// empty; the privileged flag is derived from the assigned id at the moment
// of minting and never changes afterwards.
func NewIdentity(identityID id.IdentityID, owner id.AccountID, config []byte, privilegedCohortCap id.IdentityID, height id.Height) (*Identity, error) {
	if identityID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity id must be positive")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner account is required")
	}
	if len(config) > ConfigLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "visual config must be at most %d bytes", ConfigLen)
	}
	cfg := make([]byte, len(config))
	copy(cfg, config)
	return &Identity{
		ID:         identityID,
		Owner:      owner,
		Config:     cfg,
		Privileged: identityID <= privilegedCohortCap,
		CreatedAt:  height,
		Scorers:    make(map[id.AccountID]bool),
	}, nil
}

// ModuleCapacity returns the activation slot bound for this identity.
func (i *Identity) ModuleCapacity() int {
	if i.Privileged {
		return ModuleCapacityPrivileged
	}
	return ModuleCapacityStandard
}

// IsOwnedBy reports whether account currently owns the identity.
func (i *Identity) IsOwnedBy(account id.AccountID) bool {
	return i.Owner == account
}

// CanSetName validates a rename target. The empty string always passes: it
// clears the claim.
func (i *Identity) CanSetName(name string) error {
	if len(name) > NameMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "name must be at most %d bytes", NameMaxLen)
	}
	return nil
}

// ApplySetName records the new name. Index maintenance (releasing the old
// claim, asserting the new one) is the store's job.
func (i *Identity) ApplySetName(name string) {
	i.Name = name
}

// CanSetBio validates a bio update.
func (i *Identity) CanSetBio(bio string) error {
	if len(bio) > BioMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "bio must be at most %d bytes", BioMaxLen)
	}
	return nil
}

// ApplySetBio records the new bio.
func (i *Identity) ApplySetBio(bio string) {
	i.Bio = bio
}

// CanSetConfig validates a visual configuration update.
func (i *Identity) CanSetConfig(config []byte) error {
	if len(config) > ConfigLen {
		return dErrors.Newf(dErrors.CodeValidation, "visual config must be at most %d bytes", ConfigLen)
	}
	return nil
}

// ApplySetConfig replaces the visual configuration.
func (i *Identity) ApplySetConfig(config []byte) {
	cfg := make([]byte, len(config))
	copy(cfg, config)
	i.Config = cfg
}

// CanTransfer validates a transfer target.
func (i *Identity) CanTransfer(newOwner id.AccountID) error {
	if newOwner.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "new owner account is required")
	}
	return nil
}

// ApplyTransfer moves ownership. Only the owner reference changes; the
// record itself, including its privileged flag and counters, is untouched.
func (i *Identity) ApplyTransfer(newOwner id.AccountID) {
	i.Owner = newOwner
}

// GrantScorer records write permission for external scores.
func (i *Identity) GrantScorer(account id.AccountID) {
	if i.Scorers == nil {
		i.Scorers = make(map[id.AccountID]bool)
	}
	i.Scorers[account] = true
}

// RevokeScorer removes write permission for external scores.
func (i *Identity) RevokeScorer(account id.AccountID) {
	delete(i.Scorers, account)
}

// HasScorer reports whether account may write external scores.
func (i *Identity) HasScorer(account id.AccountID) bool {
	return i.Scorers[account]
}

// CanDecrementModules guards the single counter decrement path. Callers
// must have confirmed the corresponding activation is active.
func (i *Identity) CanDecrementModules() error {
	if i.Counters.ModulesActive == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "modules-active counter is already zero")
	}
	return nil
}

// Clone returns a deep copy for read snapshots, so callers can never
// mutate ledger state through a query result.
func (i *Identity) Clone() *Identity {
	out := *i
	out.Config = append([]byte(nil), i.Config...)
	out.Scorers = make(map[id.AccountID]bool, len(i.Scorers))
	for k, v := range i.Scorers {
		out.Scorers[k] = v
	}
	return &out
}
