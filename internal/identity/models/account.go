package models

import (
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

// AccountState tracks per-account mint bookkeeping: how many identities the
// account has created, whether its one whitelist free mint is spent, and
// whether it is currently whitelisted.
type AccountState struct {
	Account      id.AccountID `json:"account"`
	Minted       uint64       `json:"minted"`
	FreeMintUsed bool         `json:"free_mint_used"`
	Whitelisted  bool         `json:"whitelisted"`
}

// CanMint guards the per-account creation cap. Admin mints bypass this.
func (a *AccountState) CanMint() error {
	if a.Minted >= MintCapPerAccount {
		return dErrors.Newf(dErrors.CodeForbidden, "account reached the %d-identity creation cap", MintCapPerAccount)
	}
	return nil
}

// ApplyMint records a creation, optionally consuming the free mint. The
// increment is checked: the counter never wraps.
func (a *AccountState) ApplyMint(usedFree bool) error {
	if a.Minted+1 < a.Minted {
		return dErrors.New(dErrors.CodeInvariantViolation, "mint counter overflow")
	}
	a.Minted++
	if usedFree {
		a.FreeMintUsed = true
	}
	return nil
}

// FreeMintAvailable reports whether the account can mint without payment.
func (a *AccountState) FreeMintAvailable() bool {
	return a.Whitelisted && !a.FreeMintUsed
}
