package service

import (
	"context"

	"sigil/internal/identity/models"
	"sigil/internal/reputation"
	"sigil/internal/tier"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

// Reputation bundles everything the reputation query exposes for one
// identity.
type Reputation struct {
	Identity   id.IdentityID       `json:"identity"`
	Age        uint64              `json:"age"`
	Counters   reputation.Counters `json:"counters"`
	Score      uint64              `json:"score"`
	Tier       tier.Tier           `json:"tier"`
	TierLabel  string              `json:"tier_label"`
	Privileged bool                `json:"privileged"`
}

// GetIdentity returns a snapshot of one identity record.
func (s *Service) GetIdentity(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	ident, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return nil, wrapIdentityErr(err)
	}
	return ident, nil
}

// GetIdentityByName resolves a claimed name.
func (s *Service) GetIdentityByName(ctx context.Context, name string) (*models.Identity, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	ident, err := s.identities.FindByName(ctx, name)
	if err != nil {
		return nil, wrapIdentityErr(err)
	}
	return ident, nil
}

// GetReputation computes the composite reputation view. Age is measured
// in height units since creation; external scores never fold in.
func (s *Service) GetReputation(ctx context.Context, identityID id.IdentityID) (*Reputation, error) {
	ident, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return nil, wrapIdentityErr(err)
	}
	current, err := s.height.Current(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
	}
	age := uint64(0)
	if current > ident.CreatedAt {
		age = uint64(current - ident.CreatedAt)
	}
	visualTier := tier.Compute(ident.Counters, ident.Privileged)
	return &Reputation{
		Identity:   ident.ID,
		Age:        age,
		Counters:   ident.Counters,
		Score:      reputation.Score(age, ident.Counters, ident.Privileged),
		Tier:       visualTier,
		TierLabel:  visualTier.Label(),
		Privileged: ident.Privileged,
	}, nil
}

// TotalSupply returns the number of identities minted so far.
func (s *Service) TotalSupply(ctx context.Context) (uint64, error) {
	count, err := s.identities.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count identities")
	}
	return count, nil
}

// CurrentHeight returns the ledger's logical clock reading.
func (s *Service) CurrentHeight(ctx context.Context) (id.Height, error) {
	height, err := s.height.Current(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
	}
	return height, nil
}
