package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitymodels "sigil/internal/identity/models"
	identitystore "sigil/internal/identity/store"
	"sigil/internal/pricing"
	"sigil/internal/render"
	dErrors "sigil/pkg/domain-errors"
)

type flakyRenderer struct {
	failing bool
	calls   int
}

func (r *flakyRenderer) Render(ctx context.Context, snap render.Snapshot) ([]byte, error) {
	r.calls++
	if r.failing {
		return nil, errors.New("renderer crashed")
	}
	return []byte("<svg>primary</svg>"), nil
}

func newService(t *testing.T, opts ...Option) (*Service, *identitystore.InMemoryIdentityStore) {
	t.Helper()
	identities := identitystore.NewInMemoryIdentityStore()
	height := identitystore.NewInMemoryHeightStore()
	return New(identities, height, opts...), identities
}

func seedIdentity(t *testing.T, identities *identitystore.InMemoryIdentityStore) *identitymodels.Identity {
	t.Helper()
	ident, err := identitymodels.NewIdentity(1, "alice", nil, pricing.FounderCap, 1)
	require.NoError(t, err)
	ident.Bio = "first of the cohort"
	require.NoError(t, identities.Insert(context.Background(), ident))
	return ident
}

func TestRender_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Render(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRender_UsesBuiltInPipeline(t *testing.T) {
	svc, identities := newService(t)
	seedIdentity(t, identities)

	out, err := svc.Render(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, string(out), "SIGIL IDENTITY")
}

func TestRender_FailureDegradesToFallback(t *testing.T) {
	renderer := &flakyRenderer{failing: true}
	svc, identities := newService(t, WithRenderer(renderer))
	seedIdentity(t, identities)

	out, err := svc.Render(context.Background(), 1)
	require.NoError(t, err, "renderer failures never fail the query")
	assert.NotContains(t, string(out), "primary")
	assert.Contains(t, string(out), "<svg", "fallback is still a valid image")
}

func TestRender_BreakerOpensAndProbes(t *testing.T) {
	renderer := &flakyRenderer{failing: true}
	svc, identities := newService(t, WithRenderer(renderer))
	seedIdentity(t, identities)
	ctx := context.Background()

	// Three failures open the breaker.
	for range 3 {
		_, err := svc.Render(ctx, 1)
		require.NoError(t, err)
	}
	callsWhenOpened := renderer.calls

	// While open, calls are served from the fallback without touching the
	// renderer, except every eighth call which probes it.
	renderer.failing = false
	for i := range 7 {
		out, err := svc.Render(ctx, 1)
		require.NoError(t, err)
		assert.NotContains(t, string(out), "primary", "call %d should not probe yet", i)
	}
	assert.Equal(t, callsWhenOpened, renderer.calls)

	out, err := svc.Render(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, string(out), "primary", "the probe call reaches the recovered renderer")
	assert.Equal(t, callsWhenOpened+1, renderer.calls)

	// The successful probe closed the breaker; traffic flows normally again.
	out, err = svc.Render(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, string(out), "primary")
}

func TestMetadata_Document(t *testing.T) {
	svc, identities := newService(t, WithRoyaltyBps(500))
	ident := seedIdentity(t, identities)

	meta, err := svc.Metadata(context.Background(), ident.ID)
	require.NoError(t, err)

	assert.Equal(t, "Sigil #1", meta.Name, "unnamed identities get the default display name")
	assert.Equal(t, "first of the cohort", meta.Description)
	assert.True(t, strings.HasPrefix(meta.Image, "data:image/svg+xml;base64,"))
	assert.Equal(t, uint32(500), meta.RoyaltyBps)

	byTrait := make(map[string]any)
	for _, attr := range meta.Attributes {
		byTrait[attr.TraitType] = attr.Value
	}
	assert.Equal(t, true, byTrait["Privileged"])
	assert.Equal(t, "Dormant", byTrait["Tier"])
	assert.Contains(t, byTrait, "Reputation")
	assert.Contains(t, byTrait, "Age")
}

func TestMetadata_UsesClaimedName(t *testing.T) {
	svc, identities := newService(t)
	seedIdentity(t, identities)
	_, err := identities.Rename(context.Background(), 1, "prime")
	require.NoError(t, err)

	meta, err := svc.Metadata(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "prime", meta.Name)
}
