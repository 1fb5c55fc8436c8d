package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitystore "sigil/internal/identity/store"
	"sigil/internal/module/store"
	"sigil/internal/pricing"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/tx"
	"sigil/pkg/testutil"

	identityservice "sigil/internal/identity/service"
)

type fixture struct {
	modules  *Service
	ledger   *identityservice.Service
	treasury *treasury.MemoryTreasury
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	identities := identitystore.NewInMemoryIdentityStore()
	height := identitystore.NewInMemoryHeightStore()
	forwarder := treasury.NewMemoryTreasury("treasury")
	runner := tx.NewMemoryRunner()

	ledger := identityservice.New(identityservice.Stores{
		Identities: identities,
		Accounts:   identitystore.NewInMemoryAccountStore(),
		Messages:   identitystore.NewInMemoryMessageStore(),
		Storage:    identitystore.NewInMemoryStorageStore(),
		Scores:     identitystore.NewInMemoryScoreStore(),
		Settings:   identitystore.NewInMemorySettingsStore(),
		Height:     height,
	}, forwarder, runner)

	modules := New(store.NewInMemoryCatalogStore(), identities, height, forwarder, runner)
	return &fixture{modules: modules, ledger: ledger, treasury: forwarder}
}

func (f *fixture) mint(t *testing.T, owner id.AccountID) id.IdentityID {
	t.Helper()
	ident, err := f.ledger.Create(testutil.CallerContext(owner), nil, pricing.FounderPrice)
	require.NoError(t, err)
	return ident.ID
}

func (f *fixture) register(t *testing.T, key id.ModuleKey) {
	t.Helper()
	_, err := f.modules.Register(context.Background(), key, "ref:"+string(key), false, 0)
	require.NoError(t, err)
}

func TestRegister_DuplicateKey(t *testing.T) {
	f := newFixture(t)
	f.register(t, "badges")

	_, err := f.modules.Register(context.Background(), "badges", "ref:other", false, 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestActivate_LifecycleAndQueries(t *testing.T) {
	f := newFixture(t)
	identityID := f.mint(t, "alice")
	f.register(t, "badges")
	ctx := testutil.CallerContext("alice")

	active, err := f.modules.IsActive(context.Background(), identityID, "badges")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, f.modules.Activate(ctx, identityID, "badges", 0))

	active, err = f.modules.IsActive(context.Background(), identityID, "badges")
	require.NoError(t, err)
	assert.True(t, active)

	ident, err := f.ledger.GetIdentity(context.Background(), identityID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ident.Counters.ModulesActive)

	// Double activation conflicts and leaves the counter alone.
	err = f.modules.Activate(ctx, identityID, "badges", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	ident, err = f.ledger.GetIdentity(context.Background(), identityID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ident.Counters.ModulesActive)

	require.NoError(t, f.modules.Deactivate(ctx, identityID, "badges"))
	ident, err = f.ledger.GetIdentity(context.Background(), identityID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ident.Counters.ModulesActive)

	// Deactivating an inactive module conflicts.
	err = f.modules.Deactivate(ctx, identityID, "badges")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestActivate_CapacityPrivileged(t *testing.T) {
	f := newFixture(t)
	identityID := f.mint(t, "alice") // id 1, privileged
	ctx := testutil.CallerContext("alice")

	for i := range 8 {
		key := id.ModuleKey(fmt.Sprintf("mod-%d", i))
		f.register(t, key)
		require.NoError(t, f.modules.Activate(ctx, identityID, key, 0))
	}

	f.register(t, "mod-overflow")
	err := f.modules.Activate(ctx, identityID, "mod-overflow", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	// Freeing one slot makes room again.
	require.NoError(t, f.modules.Deactivate(ctx, identityID, "mod-0"))
	require.NoError(t, f.modules.Activate(ctx, identityID, "mod-overflow", 0))
}

func TestActivate_CapacityStandard(t *testing.T) {
	f := newFixture(t)
	// Burn through the privileged cohort so the next mint is standard.
	admin := testutil.CallerContext("admin")
	for range 10 {
		_, err := f.ledger.AdminCreate(admin, "vault", nil, 100)
		require.NoError(t, err)
	}
	minted, err := f.ledger.AdminCreate(admin, "bob", nil, 1)
	require.NoError(t, err)
	identityID := minted[0].ID
	require.False(t, minted[0].Privileged)

	ctx := testutil.CallerContext("bob")
	for i := range 5 {
		key := id.ModuleKey(fmt.Sprintf("mod-%d", i))
		f.register(t, key)
		require.NoError(t, f.modules.Activate(ctx, identityID, key, 0))
	}

	f.register(t, "mod-overflow")
	err = f.modules.Activate(ctx, identityID, "mod-overflow", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestActivate_PremiumPayment(t *testing.T) {
	f := newFixture(t)
	identityID := f.mint(t, "alice")
	paidBefore := f.treasury.Total()

	_, err := f.modules.Register(context.Background(), "prophecy", "ref:prophecy", true, 500)
	require.NoError(t, err)

	ctx := testutil.CallerContext("alice")
	err = f.modules.Activate(ctx, identityID, "prophecy", 499)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePaymentRequired))
	assert.Equal(t, paidBefore, f.treasury.Total())

	// Overpayment is forwarded in full.
	require.NoError(t, f.modules.Activate(ctx, identityID, "prophecy", 600))
	assert.Equal(t, paidBefore+600, f.treasury.Total())
}

func TestActivate_TreasuryFailureAborts(t *testing.T) {
	f := newFixture(t)
	identityID := f.mint(t, "alice")
	f.register(t, "badges")
	f.treasury.FailNext()

	err := f.modules.Activate(testutil.CallerContext("alice"), identityID, "badges", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	active, err := f.modules.IsActive(context.Background(), identityID, "badges")
	require.NoError(t, err)
	assert.False(t, active)
	ident, err := f.ledger.GetIdentity(context.Background(), identityID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ident.Counters.ModulesActive)
}

func TestActivate_OwnershipAndExistence(t *testing.T) {
	f := newFixture(t)
	identityID := f.mint(t, "alice")
	f.register(t, "badges")

	err := f.modules.Activate(testutil.CallerContext("mallory"), identityID, "badges", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	err = f.modules.Activate(testutil.CallerContext("alice"), identityID, "ghost", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = f.modules.Activate(testutil.CallerContext("alice"), 404, "badges", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListAndDescribe(t *testing.T) {
	f := newFixture(t)
	f.register(t, "badges")
	f.register(t, "avatars")

	descs, err := f.modules.List(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, id.ModuleKey("avatars"), descs[0].Key, "descriptors are ordered by key")

	desc, err := f.modules.Describe(context.Background(), "badges")
	require.NoError(t, err)
	assert.Equal(t, "ref:badges", desc.CapabilityRef)
	assert.False(t, desc.Premium)

	_, err = f.modules.Describe(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
