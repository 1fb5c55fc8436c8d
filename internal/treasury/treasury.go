// Package treasury receives every payment the registry collects.
//
// Payments are forwarded in full, overpayment included, after the state
// change that earned them commits. A forwarding failure aborts the whole
// operation rather than leaving value stranded.
package treasury

import (
	"context"
	"sync"

	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

// Forwarder moves a payment from the paying account to the treasury.
type Forwarder interface {
	Forward(ctx context.Context, from id.AccountID, amount id.Amount) error
}

// MemoryTreasury is the in-process treasury used by tests and the memory
// deployment mode. It keeps a running total and per-payer contributions.
type MemoryTreasury struct {
	mu       sync.RWMutex
	account  id.AccountID
	total    id.Amount
	byPayer  map[id.AccountID]id.Amount
	failNext bool
}

func NewMemoryTreasury(account id.AccountID) *MemoryTreasury {
	return &MemoryTreasury{
		account: account,
		byPayer: make(map[id.AccountID]id.Amount),
	}
}

// Forward records the payment. Zero-amount forwards are accepted and
// ignored so callers need not special-case free mints.
func (t *MemoryTreasury) Forward(_ context.Context, from id.AccountID, amount id.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext {
		t.failNext = false
		return dErrors.New(dErrors.CodeUnavailable, "treasury transfer failed")
	}
	if amount == 0 {
		return nil
	}
	t.total += amount
	t.byPayer[from] += amount
	return nil
}

// Account returns the treasury account address.
func (t *MemoryTreasury) Account() id.AccountID {
	return t.account
}

// Total returns the value collected so far.
func (t *MemoryTreasury) Total() id.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// PaidBy returns the value a single account has contributed.
func (t *MemoryTreasury) PaidBy(account id.AccountID) id.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byPayer[account]
}

// FailNext makes the next Forward call fail once. Test hook for the
// payment-failure abort path.
func (t *MemoryTreasury) FailNext() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failNext = true
}
