package service

import (
	"context"

	"sigil/internal/identity/models"
	"sigil/internal/pricing"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
)

// AdminMintBatchLimit bounds a single admin mint request.
const AdminMintBatchLimit = 100

// Create mints a new identity for the caller.
//
// Validation order: pause switch, whitelist mode, per-account cap, config
// bounds, then payment sufficiency against the current curve price.
// Whitelisted accounts get one free mint. The full received payment,
// overpayment included, is forwarded to the treasury; a forwarding
// failure aborts the mint.
func (s *Service) Create(ctx context.Context, config []byte, payment id.Amount) (*models.Identity, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.acquireGuard(); err != nil {
		return nil, err
	}
	defer s.releaseGuard()

	ctx, span := s.startSpan(ctx, "identity.Create", 0)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		settings, err := s.settings.Get(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry settings")
		}
		if settings.Paused {
			return dErrors.New(dErrors.CodeUnavailable, "minting is paused")
		}

		state, err := s.accounts.Find(txCtx, owner)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account state")
		}
		if settings.WhitelistOnly && !state.Whitelisted {
			return dErrors.New(dErrors.CodeForbidden, "minting is restricted to whitelisted accounts")
		}
		if err := state.CanMint(); err != nil {
			return err
		}
		if len(config) > models.ConfigLen {
			return dErrors.Newf(dErrors.CodeValidation, "visual config must be at most %d bytes", models.ConfigLen)
		}

		nextID, err := s.identities.PeekNextID(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read next identity id")
		}
		price := pricing.Price(nextID)
		usedFree := state.FreeMintAvailable()
		if !usedFree && payment < price {
			return dErrors.Newf(dErrors.CodePaymentRequired,
				"creation requires %d base units, received %d", price, payment)
		}

		// All validation has passed; forward the full received payment
		// before touching state so a treasury failure leaves no trace.
		// The held guard rules out reentrant observation either way.
		if err := s.treasury.Forward(txCtx, owner, payment); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "payment forwarding failed")
		}

		identityID, err := s.identities.AllocateID(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate identity id")
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		minted, err := models.NewIdentity(identityID, owner, config, pricing.FounderCap, height)
		if err != nil {
			return err
		}
		if err := s.identities.Insert(txCtx, minted); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert identity")
		}
		if _, err := s.accounts.Execute(txCtx, owner, nil, func(a *models.AccountState) {
			_ = a.ApplyMint(usedFree)
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record mint")
		}

		s.emit(txCtx, audit.EventIdentityCreated, height, identityID, "", payment)
		ident = minted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IdentitiesCreated.Inc()
		s.metrics.PaymentsForwarded.Inc()
		s.metrics.ValueForwarded.Add(float64(payment))
	}
	s.logger.InfoContext(ctx, "identity created",
		"identity_id", ident.ID, "owner", owner, "privileged", ident.Privileged, "payment", payment)
	return ident, nil
}

// AdminCreate mints count identities directly to recipient, bypassing the
// pause switch, the per-account cap, the whitelist, and payment. The ids
// still come off the same sequence, so admin mints can land in the
// privileged cohort.
func (s *Service) AdminCreate(ctx context.Context, recipient id.AccountID, config []byte, count int) ([]*models.Identity, error) {
	if recipient.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient account is required")
	}
	if count < 1 || count > AdminMintBatchLimit {
		return nil, dErrors.Newf(dErrors.CodeValidation, "count must be between 1 and %d", AdminMintBatchLimit)
	}
	if len(config) > models.ConfigLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "visual config must be at most %d bytes", models.ConfigLen)
	}
	if err := s.acquireGuard(); err != nil {
		return nil, err
	}
	defer s.releaseGuard()

	ctx, span := s.startSpan(ctx, "identity.AdminCreate", 0)
	defer span.End()

	var minted []*models.Identity
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for range count {
			identityID, err := s.identities.AllocateID(txCtx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate identity id")
			}
			height, err := s.height.Advance(txCtx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
			}
			ident, err := models.NewIdentity(identityID, recipient, config, pricing.FounderCap, height)
			if err != nil {
				return err
			}
			if err := s.identities.Insert(txCtx, ident); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert identity")
			}
			s.emit(txCtx, audit.EventAdminMint, height, identityID, string(recipient), 0)
			minted = append(minted, ident)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IdentitiesCreated.Add(float64(len(minted)))
		s.metrics.AdminMints.Add(float64(len(minted)))
	}
	s.logger.InfoContext(ctx, "admin mint",
		"recipient", recipient, "count", len(minted))
	return minted, nil
}

// QuoteNextPrice returns the id the next creation would receive and its
// curve price. Read-only; the quote can go stale the moment a mint lands.
func (s *Service) QuoteNextPrice(ctx context.Context) (id.IdentityID, id.Amount, error) {
	nextID, err := s.identities.PeekNextID(ctx)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read next identity id")
	}
	return nextID, pricing.Price(nextID), nil
}
