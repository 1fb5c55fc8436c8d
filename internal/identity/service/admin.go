package service

import (
	"context"
	"strconv"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
)

// Admin switches. Routes reaching these are already behind the admin
// token gate; the service treats them as regular audited mutations.

// PauseMinting stops all non-admin creation.
func (s *Service) PauseMinting(ctx context.Context) (models.Settings, error) {
	return s.setSwitch(ctx, audit.EventMintingPaused, "true", func(settings *models.Settings) {
		settings.Paused = true
	})
}

// ResumeMinting re-enables creation.
func (s *Service) ResumeMinting(ctx context.Context) (models.Settings, error) {
	return s.setSwitch(ctx, audit.EventMintingResumed, "false", func(settings *models.Settings) {
		settings.Paused = false
	})
}

// SetWhitelistOnly toggles whitelist-restricted minting.
func (s *Service) SetWhitelistOnly(ctx context.Context, enabled bool) (models.Settings, error) {
	return s.setSwitch(ctx, audit.EventWhitelistOnlySet, strconv.FormatBool(enabled), func(settings *models.Settings) {
		settings.WhitelistOnly = enabled
	})
}

func (s *Service) setSwitch(ctx context.Context, action audit.LedgerEvent, detail string, mutate func(*models.Settings)) (models.Settings, error) {
	ctx, span := s.startSpan(ctx, "identity."+string(action), 0)
	defer span.End()

	var out models.Settings
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		settings, err := s.settings.Execute(txCtx, mutate)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registry settings")
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, action, height, 0, detail, 0)
		out = settings
		return nil
	})
	return out, err
}

// AddToWhitelist marks an account as whitelisted, entitling it to one
// free mint and to minting while whitelist-only mode is on.
func (s *Service) AddToWhitelist(ctx context.Context, account id.AccountID) error {
	return s.setWhitelisted(ctx, account, true, audit.EventWhitelistAdded)
}

// RemoveFromWhitelist clears an account's whitelist flag. A free mint
// already consumed stays consumed.
func (s *Service) RemoveFromWhitelist(ctx context.Context, account id.AccountID) error {
	return s.setWhitelisted(ctx, account, false, audit.EventWhitelistRemoved)
}

func (s *Service) setWhitelisted(ctx context.Context, account id.AccountID, whitelisted bool, action audit.LedgerEvent) error {
	if account.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "account is required")
	}
	ctx, span := s.startSpan(ctx, "identity."+string(action), 0)
	defer span.End()

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.accounts.Execute(txCtx, account, nil, func(a *models.AccountState) {
			a.Whitelisted = whitelisted
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update whitelist")
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, action, height, 0, string(account), 0)
		return nil
	})
}

// Settings returns the current administrative switches.
func (s *Service) Settings(ctx context.Context) (models.Settings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return models.Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry settings")
	}
	return settings, nil
}

// AccountState returns an account's mint bookkeeping.
func (s *Service) AccountState(ctx context.Context, account id.AccountID) (*models.AccountState, error) {
	if account.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "account is required")
	}
	state, err := s.accounts.Find(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account state")
	}
	return state, nil
}
