package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/sentinel"
)

func seed(t *testing.T, s *InMemoryIdentityStore, owner id.AccountID) *models.Identity {
	t.Helper()
	identityID, err := s.AllocateID(context.Background())
	require.NoError(t, err)
	ident, err := models.NewIdentity(identityID, owner, nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), ident))
	return ident
}

func TestIdentityStore_SequentialIDs(t *testing.T) {
	s := NewInMemoryIdentityStore()
	ctx := context.Background()

	next, err := s.PeekNextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.IdentityID(1), next)

	first, err := s.AllocateID(ctx)
	require.NoError(t, err)
	second, err := s.AllocateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.IdentityID(1), first)
	assert.Equal(t, id.IdentityID(2), second)

	// Peek never reserves.
	next, err = s.PeekNextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.IdentityID(3), next)
}

func TestIdentityStore_SnapshotsAreIsolated(t *testing.T) {
	s := NewInMemoryIdentityStore()
	ident := seed(t, s, "alice")

	snap, err := s.FindByID(context.Background(), ident.ID)
	require.NoError(t, err)
	snap.Owner = "mallory"
	snap.Counters.MessagesSent = 99

	fresh, err := s.FindByID(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Equal(t, id.AccountID("alice"), fresh.Owner, "query results must not leak mutable state")
	assert.Equal(t, uint64(0), fresh.Counters.MessagesSent)
}

func TestIdentityStore_ExecuteBumpsVersion(t *testing.T) {
	s := NewInMemoryIdentityStore()
	ident := seed(t, s, "alice")

	out, err := s.Execute(context.Background(), ident.ID, nil, func(i *models.Identity) {
		i.Counters.StorageWrites++
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Version)

	// A failed validation leaves the record untouched.
	_, err = s.Execute(context.Background(), ident.ID,
		func(*models.Identity) error { return errors.New("rejected") },
		func(i *models.Identity) { i.Counters.StorageWrites = 100 })
	require.Error(t, err)

	fresh, err := s.FindByID(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fresh.Counters.StorageWrites)
	assert.Equal(t, uint64(1), fresh.Version)
}

func TestIdentityStore_RenameClaims(t *testing.T) {
	s := NewInMemoryIdentityStore()
	first := seed(t, s, "alice")
	second := seed(t, s, "bob")
	ctx := context.Background()

	_, err := s.Rename(ctx, first.ID, "prime")
	require.NoError(t, err)

	_, err = s.Rename(ctx, second.ID, "prime")
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// Renaming to your own current name is not a conflict.
	_, err = s.Rename(ctx, first.ID, "prime")
	require.NoError(t, err)

	// Switching names releases the old claim.
	_, err = s.Rename(ctx, first.ID, "other")
	require.NoError(t, err)
	_, err = s.Rename(ctx, second.ID, "prime")
	require.NoError(t, err)

	found, err := s.FindByName(ctx, "prime")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
	_, err = s.FindByName(ctx, "gone")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMessageStore_Indices(t *testing.T) {
	s := NewInMemoryMessageStore()
	ctx := context.Background()

	msgs := []models.Message{
		{From: 1, To: 2, Channel: 7, Height: 1},
		{From: 1, To: models.BroadcastRecipient, Channel: 7, Height: 2},
		{From: 2, To: 1, Channel: models.DirectChannel, Height: 3},
	}
	for _, m := range msgs {
		require.NoError(t, s.Append(ctx, m))
	}

	channel, err := s.ListByChannel(ctx, 7)
	require.NoError(t, err)
	require.Len(t, channel, 2, "broadcasts are indexed by channel")
	assert.Equal(t, id.Height(1), channel[0].Height, "ledger order is preserved")

	inbox, err := s.ListByRecipient(ctx, 1)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, id.IdentityID(2), inbox[0].From)

	// Broadcasts land in no inbox.
	inbox, err = s.ListByRecipient(ctx, models.BroadcastRecipient)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestSettingsStore_SingletonMutation(t *testing.T) {
	s := NewInMemorySettingsStore()
	ctx := context.Background()

	settings, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, settings.Paused)

	updated, err := s.Execute(ctx, func(st *models.Settings) { st.Paused = true })
	require.NoError(t, err)
	assert.True(t, updated.Paused)

	settings, err = s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Paused)
}

func TestHeightStore_Advances(t *testing.T) {
	s := NewInMemoryHeightStore()
	ctx := context.Background()

	current, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.Height(0), current)

	for want := id.Height(1); want <= 3; want++ {
		got, err := s.Advance(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
