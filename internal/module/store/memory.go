package store

import (
	"context"
	"sort"
	"sync"

	"sigil/internal/module/models"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/sentinel"
)

// InMemoryCatalogStore holds the global module descriptors and every
// identity's activation slots. Mutations run inside the ledger's
// transaction section, same as the identity stores.
type InMemoryCatalogStore struct {
	mu          sync.RWMutex
	descriptors map[id.ModuleKey]models.Descriptor
	activations map[id.IdentityID]map[id.ModuleKey]models.Activation
}

func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		descriptors: make(map[id.ModuleKey]models.Descriptor),
		activations: make(map[id.IdentityID]map[id.ModuleKey]models.Activation),
	}
}

// RegisterIfAvailable stores the descriptor unless the key is already
// taken. Duplicate registration is sentinel.ErrConflict, never a silent
// no-op.
func (s *InMemoryCatalogStore) RegisterIfAvailable(_ context.Context, desc *models.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.descriptors[desc.Key]; exists {
		return sentinel.ErrConflict
	}
	s.descriptors[desc.Key] = *desc
	return nil
}

// FindDescriptor returns a registered descriptor.
func (s *InMemoryCatalogStore) FindDescriptor(_ context.Context, key id.ModuleKey) (*models.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.descriptors[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := desc
	return &out, nil
}

// ListDescriptors returns every registered descriptor ordered by key.
func (s *InMemoryCatalogStore) ListDescriptors(_ context.Context) ([]models.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.descriptors))
	for k := range s.descriptors {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := make([]models.Descriptor, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.descriptors[id.ModuleKey(k)])
	}
	return out, nil
}

// CountActive returns the identity's current active-module count.
func (s *InMemoryCatalogStore) CountActive(_ context.Context, identityID id.IdentityID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, act := range s.activations[identityID] {
		if act.Active {
			count++
		}
	}
	return count, nil
}

// IsActive reports whether the identity currently has the module active.
func (s *InMemoryCatalogStore) IsActive(_ context.Context, identityID id.IdentityID, key id.ModuleKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act, ok := s.activations[identityID][key]
	return ok && act.Active, nil
}

// Activate flips the slot on. Returns sentinel.ErrInvalidState when the
// module is already active for the identity.
func (s *InMemoryCatalogStore) Activate(_ context.Context, identityID id.IdentityID, key id.ModuleKey, height id.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.activations[identityID]
	if !ok {
		slots = make(map[id.ModuleKey]models.Activation)
		s.activations[identityID] = slots
	}
	if act, exists := slots[key]; exists && act.Active {
		return sentinel.ErrInvalidState
	}
	slots[key] = models.Activation{Identity: identityID, Key: key, Active: true, ActivatedAt: height}
	return nil
}

// Deactivate flips the slot off. Returns sentinel.ErrInvalidState when the
// module is not currently active.
func (s *InMemoryCatalogStore) Deactivate(_ context.Context, identityID id.IdentityID, key id.ModuleKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.activations[identityID][key]
	if !ok || !act.Active {
		return sentinel.ErrInvalidState
	}
	act.Active = false
	s.activations[identityID][key] = act
	return nil
}
