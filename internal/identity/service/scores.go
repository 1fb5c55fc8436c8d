package service

import (
	"context"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
)

// GrantScorer lets the owner authorize an account to write external
// scores on the identity.
func (s *Service) GrantScorer(ctx context.Context, identityID id.IdentityID, scorer id.AccountID) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if scorer.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "scorer account is required")
	}
	ctx, span := s.startSpan(ctx, "identity.GrantScorer", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				return requireOwner(i, account)
			},
			func(i *models.Identity) {
				i.GrantScorer(scorer)
			},
		)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventScorerGranted, height, identityID, string(scorer), 0)
		ident = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ident, nil
}

// RevokeScorer removes an account's external-score write permission.
func (s *Service) RevokeScorer(ctx context.Context, identityID id.IdentityID, scorer id.AccountID) (*models.Identity, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if scorer.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "scorer account is required")
	}
	ctx, span := s.startSpan(ctx, "identity.RevokeScorer", identityID)
	defer span.End()

	var ident *models.Identity
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				return requireOwner(i, account)
			},
			func(i *models.Identity) {
				i.RevokeScorer(scorer)
			},
		)
		if err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventScorerRevoked, height, identityID, string(scorer), 0)
		ident = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ident, nil
}

// SetExternalScore writes a keyed score on an identity. Only accounts the
// owner has granted may write; scores live outside the composite
// reputation formula and never feed back into it.
func (s *Service) SetExternalScore(ctx context.Context, identityID id.IdentityID, key string, value int64) error {
	account, err := caller(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		return dErrors.New(dErrors.CodeValidation, "score key is required")
	}
	if len(key) > models.StorageKeyMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "score key must be at most %d bytes", models.StorageKeyMaxLen)
	}
	ctx, span := s.startSpan(ctx, "identity.SetExternalScore", identityID)
	defer span.End()

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ident, err := s.identities.FindByID(txCtx, identityID)
		if err != nil {
			return wrapIdentityErr(err)
		}
		if !ident.HasScorer(account) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not an authorized scorer for this identity")
		}
		if err := s.scores.Set(txCtx, models.ExternalScore{
			Identity: identityID,
			Key:      key,
			Value:    value,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set external score")
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventExternalScoreSet, height, identityID, key, 0)
		return nil
	})
}

// ListExternalScores returns all external scores on an identity, ordered
// by key.
func (s *Service) ListExternalScores(ctx context.Context, identityID id.IdentityID) ([]models.ExternalScore, error) {
	if _, err := s.identities.FindByID(ctx, identityID); err != nil {
		return nil, wrapIdentityErr(err)
	}
	scores, err := s.scores.List(ctx, identityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list external scores")
	}
	return scores, nil
}
