package service

import (
	"context"
	"errors"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
	"sigil/pkg/platform/sentinel"
)

func wrapIdentityErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "name is already claimed")
	default:
		return err
	}
}

// requireOwner validates that the caller owns the identity.
func requireOwner(ident *models.Identity, account id.AccountID) error {
	if !ident.IsOwnedBy(account) {
		return dErrors.New(dErrors.CodeForbidden, "caller does not own this identity")
	}
	return nil
}

// SetName claims a globally unique name for the identity, releasing any
// previous claim. An empty name only releases.
func (s *Service) SetName(ctx context.Context, identityID id.IdentityID, name string) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.SetName", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.identities.FindByID(txCtx, identityID)
		if err != nil {
			return wrapIdentityErr(err)
		}
		if err := requireOwner(current, account); err != nil {
			return err
		}
		if err := current.CanSetName(name); err != nil {
			return err
		}
		renamed, err := s.identities.Rename(txCtx, identityID, name)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventNameUpdated, height, identityID, name, 0)
		ident = renamed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRender(ctx, identityID)
	return ident, nil
}

// SetBio updates the identity's bio text.
func (s *Service) SetBio(ctx context.Context, identityID id.IdentityID, bio string) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.SetBio", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				if err := requireOwner(i, account); err != nil {
					return err
				}
				return i.CanSetBio(bio)
			},
			func(i *models.Identity) {
				i.ApplySetBio(bio)
			},
		)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventBioUpdated, height, identityID, "", 0)
		ident = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRender(ctx, identityID)
	return ident, nil
}

// SetVisualConfig replaces the identity's visual configuration bytes.
func (s *Service) SetVisualConfig(ctx context.Context, identityID id.IdentityID, config []byte) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.SetVisualConfig", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				if err := requireOwner(i, account); err != nil {
					return err
				}
				return i.CanSetConfig(config)
			},
			func(i *models.Identity) {
				i.ApplySetConfig(config)
			},
		)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventConfigUpdated, height, identityID, "", 0)
		ident = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRender(ctx, identityID)
	return ident, nil
}

// Transfer moves ownership to another account. Only the owner reference
// changes; name, counters, and the privileged flag travel with the record.
func (s *Service) Transfer(ctx context.Context, identityID id.IdentityID, newOwner id.AccountID) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.Transfer", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				if err := requireOwner(i, account); err != nil {
					return err
				}
				return i.CanTransfer(newOwner)
			},
			func(i *models.Identity) {
				i.ApplyTransfer(newOwner)
			},
		)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventIdentityTransferred, height, identityID, string(newOwner), 0)
		ident = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Transfers.Inc()
	}
	s.invalidateRender(ctx, identityID)
	return ident, nil
}
