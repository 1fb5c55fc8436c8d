package store

import (
	"context"
	"sort"
	"sync"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/sentinel"
)

// In-memory stores back the ledger for tests and single-process deployments.
// Mutating ledger operations always run inside the tx.MemoryRunner's global
// section, so cross-store consistency holds without extra coordination; the
// per-store locks below make concurrent reads safe on their own.

// InMemoryIdentityStore owns the identity records, the sequential id
// counter, and the name uniqueness index.
type InMemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[id.IdentityID]*models.Identity
	names      map[string]id.IdentityID
	nextID     id.IdentityID
}

func NewInMemoryIdentityStore() *InMemoryIdentityStore {
	return &InMemoryIdentityStore{
		identities: make(map[id.IdentityID]*models.Identity),
		names:      make(map[string]id.IdentityID),
	}
}

// AllocateID reserves and returns the next sequential identity id.
func (s *InMemoryIdentityStore) AllocateID(_ context.Context) (id.IdentityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

// PeekNextID returns the id the next creation would receive, without
// reserving it. Used for price quoting.
func (s *InMemoryIdentityStore) PeekNextID(_ context.Context) (id.IdentityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID + 1, nil
}

// Insert stores a freshly minted identity.
func (s *InMemoryIdentityStore) Insert(_ context.Context, ident *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[ident.ID] = ident.Clone()
	return nil
}

// FindByID returns a snapshot of the identity record.
func (s *InMemoryIdentityStore) FindByID(_ context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return ident.Clone(), nil
}

// FindByName resolves a claimed name to its identity snapshot.
func (s *InMemoryIdentityStore) FindByName(_ context.Context, name string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identityID, ok := s.names[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.identities[identityID].Clone(), nil
}

// Execute runs validate-then-mutate against the live record under the
// store lock, bumping the record version on success.
func (s *InMemoryIdentityStore) Execute(_ context.Context, identityID id.IdentityID, validate func(*models.Identity) error, mutate func(*models.Identity)) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(ident); err != nil {
			return nil, err
		}
	}
	mutate(ident)
	ident.Version++
	return ident.Clone(), nil
}

// Rename releases the identity's previous name claim (if any) and asserts
// the new one. An empty name only releases. Returns sentinel.ErrConflict
// when another identity holds the requested name.
func (s *InMemoryIdentityStore) Rename(_ context.Context, identityID id.IdentityID, name string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if name != "" {
		if holder, claimed := s.names[name]; claimed && holder != identityID {
			return nil, sentinel.ErrConflict
		}
	}
	if ident.Name != "" {
		delete(s.names, ident.Name)
	}
	if name != "" {
		s.names[name] = identityID
	}
	ident.ApplySetName(name)
	ident.Version++
	return ident.Clone(), nil
}

// Count returns the number of minted identities.
func (s *InMemoryIdentityStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.identities)), nil
}

// InMemoryAccountStore tracks per-account mint state and the whitelist.
type InMemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.AccountState
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{accounts: make(map[id.AccountID]*models.AccountState)}
}

// Find returns the account state, zero-valued when never seen.
func (s *InMemoryAccountStore) Find(_ context.Context, account id.AccountID) (*models.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.accounts[account]; ok {
		out := *state
		return &out, nil
	}
	return &models.AccountState{Account: account}, nil
}

// Execute runs validate-then-mutate on the live account state, creating it
// on first touch.
func (s *InMemoryAccountStore) Execute(_ context.Context, account id.AccountID, validate func(*models.AccountState) error, mutate func(*models.AccountState)) (*models.AccountState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.accounts[account]
	if !ok {
		state = &models.AccountState{Account: account}
		s.accounts[account] = state
	}
	if validate != nil {
		if err := validate(state); err != nil {
			return nil, err
		}
	}
	mutate(state)
	out := *state
	return &out, nil
}

// InMemoryMessageStore appends messages and maintains the channel and
// recipient indices.
type InMemoryMessageStore struct {
	mu          sync.RWMutex
	messages    []models.Message
	byChannel   map[uint32][]int
	byRecipient map[id.IdentityID][]int
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		byChannel:   make(map[uint32][]int),
		byRecipient: make(map[id.IdentityID][]int),
	}
}

// Append stores the message and indexes it: by channel when the channel is
// non-zero, by recipient when the target is non-zero. Broadcasts land in
// neither index.
func (s *InMemoryMessageStore) Append(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.messages)
	s.messages = append(s.messages, msg)
	if msg.Channel != models.DirectChannel {
		s.byChannel[msg.Channel] = append(s.byChannel[msg.Channel], idx)
	}
	if !msg.IsBroadcast() {
		s.byRecipient[msg.To] = append(s.byRecipient[msg.To], idx)
	}
	return nil
}

// ListByChannel returns the channel's messages in append order.
func (s *InMemoryMessageStore) ListByChannel(_ context.Context, channel uint32) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byChannel[channel]), nil
}

// ListByRecipient returns the recipient's messages in append order.
func (s *InMemoryMessageStore) ListByRecipient(_ context.Context, to id.IdentityID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byRecipient[to]), nil
}

func (s *InMemoryMessageStore) collect(indices []int) []models.Message {
	out := make([]models.Message, 0, len(indices))
	for _, i := range indices {
		out = append(out, s.messages[i])
	}
	return out
}

// InMemoryStorageStore holds per-identity key-value slots.
type InMemoryStorageStore struct {
	mu    sync.RWMutex
	slots map[id.IdentityID]map[string]models.StorageSlot
}

func NewInMemoryStorageStore() *InMemoryStorageStore {
	return &InMemoryStorageStore{slots: make(map[id.IdentityID]map[string]models.StorageSlot)}
}

// Put writes or overwrites a slot.
func (s *InMemoryStorageStore) Put(_ context.Context, slot models.StorageSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.slots[slot.Identity]
	if !ok {
		byKey = make(map[string]models.StorageSlot)
		s.slots[slot.Identity] = byKey
	}
	byKey[slot.Key] = slot
	return nil
}

// Find returns a slot or sentinel.ErrNotFound.
func (s *InMemoryStorageStore) Find(_ context.Context, identityID id.IdentityID, key string) (*models.StorageSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot, ok := s.slots[identityID][key]; ok {
		return &slot, nil
	}
	return nil, sentinel.ErrNotFound
}

// InMemoryScoreStore holds external scores keyed per identity.
type InMemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[id.IdentityID]map[string]int64
}

func NewInMemoryScoreStore() *InMemoryScoreStore {
	return &InMemoryScoreStore{scores: make(map[id.IdentityID]map[string]int64)}
}

// Set overwrites the score under the given key.
func (s *InMemoryScoreStore) Set(_ context.Context, score models.ExternalScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.scores[score.Identity]
	if !ok {
		byKey = make(map[string]int64)
		s.scores[score.Identity] = byKey
	}
	byKey[score.Key] = score.Value
	return nil
}

// List returns all external scores for an identity, ordered by key so
// query output is stable.
func (s *InMemoryScoreStore) List(_ context.Context, identityID id.IdentityID) ([]models.ExternalScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey := s.scores[identityID]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.ExternalScore, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.ExternalScore{Identity: identityID, Key: k, Value: byKey[k]})
	}
	return out, nil
}

// InMemorySettingsStore holds the registry's administrative switches.
type InMemorySettingsStore struct {
	mu       sync.RWMutex
	settings models.Settings
}

func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{}
}

// Get returns a snapshot of the current switches.
func (s *InMemorySettingsStore) Get(_ context.Context) (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// Execute mutates the switches under the store lock.
func (s *InMemorySettingsStore) Execute(_ context.Context, mutate func(*models.Settings)) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.settings)
	return s.settings, nil
}

// InMemoryHeightStore is the ledger's logical clock.
type InMemoryHeightStore struct {
	mu     sync.RWMutex
	height id.Height
}

func NewInMemoryHeightStore() *InMemoryHeightStore {
	return &InMemoryHeightStore{}
}

// Current returns the latest committed height.
func (s *InMemoryHeightStore) Current(_ context.Context) (id.Height, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, nil
}

// Advance increments the logical clock and returns the new height. Called
// exactly once per committed mutation.
func (s *InMemoryHeightStore) Advance(_ context.Context) (id.Height, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height++
	return s.height, nil
}
