package tx

import (
	"context"
	"sync"
)

// MemoryRunner serializes transactional sections on a single mutex. With
// memory stores this is the transaction boundary: every mutation runs under
// the same lock, so state transitions interleave only by total serial order.
type MemoryRunner struct {
	mu sync.Mutex
}

// NewMemoryRunner constructs the in-process transaction runner.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
