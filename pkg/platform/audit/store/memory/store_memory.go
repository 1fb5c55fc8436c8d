package memory

import (
	"context"
	"sync"

	id "sigil/pkg/domain"
	audit "sigil/pkg/platform/audit"
)

// InMemoryStore keeps events in append order with a per-identity index.
type InMemoryStore struct {
	mu         sync.RWMutex
	events     []audit.Event
	byIdentity map[id.IdentityID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byIdentity: make(map[id.IdentityID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.events)
	s.events = append(s.events, event)
	if !event.Identity.IsZero() {
		s.byIdentity[event.Identity] = append(s.byIdentity[event.Identity], idx)
	}
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices := s.byIdentity[identityID]
	out := make([]audit.Event, 0, len(indices))
	for _, i := range indices {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every event in append order. Test helper.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}
