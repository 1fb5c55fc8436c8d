//go:build integration

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/identity/store"
	modulestore "sigil/internal/module/store"
	"sigil/internal/pricing"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	auditpub "sigil/pkg/platform/audit/publisher"
	auditpg "sigil/pkg/platform/audit/store/postgres"
	"sigil/pkg/platform/tx"
	"sigil/pkg/testutil"
	"sigil/pkg/testutil/containers"

	moduleservice "sigil/internal/module/service"
)

type pgFixture struct {
	ledger   *Service
	modules  *moduleservice.Service
	treasury *treasury.MemoryTreasury
	outbox   *auditpg.Store
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx, pg.DB))
	require.NoError(t, modulestore.EnsureSchema(ctx, pg.DB))
	require.NoError(t, auditpg.EnsureSchema(ctx, pg.DB))

	identities := store.NewPostgresIdentityStore(pg.DB)
	height := store.NewPostgresHeightStore(pg.DB)
	forwarder := treasury.NewMemoryTreasury("treasury")
	runner := tx.NewSQLRunner(pg.DB)
	outbox := auditpg.New(pg.DB)

	ledger := New(Stores{
		Identities: identities,
		Accounts:   store.NewPostgresAccountStore(pg.DB),
		Messages:   store.NewPostgresMessageStore(pg.DB),
		Storage:    store.NewPostgresStorageStore(pg.DB),
		Scores:     store.NewPostgresScoreStore(pg.DB),
		Settings:   store.NewPostgresSettingsStore(pg.DB),
		Height:     height,
	}, forwarder, runner,
		WithAuditPublisher(auditpub.NewPublisher(outbox)),
	)
	modules := moduleservice.New(modulestore.NewPostgresCatalogStore(pg.DB), identities, height, forwarder, runner)
	return &pgFixture{ledger: ledger, modules: modules, treasury: forwarder, outbox: outbox}
}

func TestPostgres_MintLifecycle(t *testing.T) {
	f := newPGFixture(t)
	ctx := testutil.CallerContext("alice")

	ident, err := f.ledger.Create(ctx, []byte{0, 255, 215, 0, 26, 26, 46, 1, 4}, pricing.FounderPrice)
	require.NoError(t, err)
	assert.Equal(t, id.IdentityID(1), ident.ID)
	assert.True(t, ident.Privileged)
	assert.Equal(t, pricing.FounderPrice, f.treasury.Total())

	_, err = f.ledger.SetName(ctx, ident.ID, "prime")
	require.NoError(t, err)
	found, err := f.ledger.GetIdentityByName(context.Background(), "prime")
	require.NoError(t, err)
	assert.Equal(t, ident.ID, found.ID)

	// The unique name index rejects a second claim.
	other, err := f.ledger.Create(testutil.CallerContext("bob"), nil, pricing.FounderPrice)
	require.NoError(t, err)
	_, err = f.ledger.SetName(testutil.CallerContext("bob"), other.ID, "prime")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = f.ledger.SendMessage(ctx, ident.ID, other.ID, 7, 1, []byte("hello"))
	require.NoError(t, err)
	_, err = f.ledger.WriteStorage(ctx, ident.ID, "avatar", []byte{1, 2, 3})
	require.NoError(t, err)

	after, err := f.ledger.GetIdentity(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), after.Counters.MessagesSent)
	assert.Equal(t, uint64(1), after.Counters.StorageWrites)

	inbox, err := f.ledger.ListInboxMessages(context.Background(), other.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	slot, err := f.ledger.ReadStorage(context.Background(), ident.ID, "avatar")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, slot.Value)
}

func TestPostgres_TreasuryFailureRollsBack(t *testing.T) {
	f := newPGFixture(t)
	f.treasury.FailNext()

	_, err := f.ledger.Create(testutil.CallerContext("alice"), nil, pricing.FounderPrice)
	require.Error(t, err)

	supply, err := f.ledger.TotalSupply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), supply)
	height, err := f.ledger.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id.Height(0), height)
}

func TestPostgres_ModuleSlots(t *testing.T) {
	f := newPGFixture(t)
	ctx := testutil.CallerContext("alice")
	ident, err := f.ledger.Create(ctx, nil, pricing.FounderPrice)
	require.NoError(t, err)

	_, err = f.modules.Register(context.Background(), "badges", "ref:badges", false, 0)
	require.NoError(t, err)

	require.NoError(t, f.modules.Activate(ctx, ident.ID, "badges", 0))
	active, err := f.modules.IsActive(context.Background(), ident.ID, "badges")
	require.NoError(t, err)
	assert.True(t, active)

	err = f.modules.Activate(ctx, ident.ID, "badges", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	require.NoError(t, f.modules.Deactivate(ctx, ident.ID, "badges"))
	after, err := f.ledger.GetIdentity(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), after.Counters.ModulesActive)
}

func TestPostgres_OutboxDrain(t *testing.T) {
	f := newPGFixture(t)
	ctx := testutil.CallerContext("alice")

	ident, err := f.ledger.Create(ctx, nil, pricing.FounderPrice)
	require.NoError(t, err)
	_, err = f.ledger.SetBio(ctx, ident.ID, "hello")
	require.NoError(t, err)

	entries, err := f.outbox.NextBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2, "every committed mutation leaves one outbox row")

	for _, entry := range entries {
		require.NoError(t, f.outbox.MarkPublished(context.Background(), entry.ID))
	}
	entries, err = f.outbox.NextBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The event log itself survives the outbox drain.
	events, err := f.outbox.ListByIdentity(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
