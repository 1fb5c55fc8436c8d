// Package opguard serializes payable ledger operations.
//
// A payable entry point acquires the guard for its full duration; a
// nested or concurrent payable call is rejected instead of queued, which
// is the reentry protection the ledger's effects discipline relies on.
package opguard

import (
	"sync"

	dErrors "sigil/pkg/domain-errors"
)

// Guard is a non-blocking mutual exclusion for payable operations. The
// zero value is ready to use.
type Guard struct {
	mu sync.Mutex
}

func New() *Guard {
	return &Guard{}
}

// Acquire takes the guard without blocking. Failure means another
// payable operation is in flight.
func (g *Guard) Acquire() error {
	if !g.mu.TryLock() {
		return dErrors.New(dErrors.CodeConflict, "another payable operation is in progress")
	}
	return nil
}

// Release frees the guard. Must pair with a successful Acquire.
func (g *Guard) Release() {
	g.mu.Unlock()
}
