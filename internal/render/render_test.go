package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/reputation"
	id "sigil/pkg/domain"
)

func renderString(t *testing.T, snap Snapshot) string {
	t.Helper()
	out, err := NewPipeline().Render(context.Background(), snap)
	require.NoError(t, err)
	return string(out)
}

func TestRender_ByteIdentical(t *testing.T) {
	snap := Snapshot{
		ID:         42,
		Name:       "prime",
		Privileged: true,
		Config:     []byte{3, 10, 20, 30, 40, 50, 60, 2, 1},
		CreatedAt:  5,
		Counters:   reputation.Counters{MessagesSent: 30, StorageWrites: 12, ModulesActive: 3},
		Height:     950,
	}
	first, err := NewPipeline().Render(context.Background(), snap)
	require.NoError(t, err)
	second, err := NewPipeline().Render(context.Background(), snap)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "identical snapshots must render byte-identical output")
}

func TestRender_DormantEmitsNoAnimation(t *testing.T) {
	out := renderString(t, Snapshot{ID: 1})

	assert.NotContains(t, out, "<style>")
	assert.NotContains(t, out, "shape-osc")
	assert.NotContains(t, out, "Dormant", "dormant identities carry no tier badge")
	assert.Contains(t, out, "SIGIL IDENTITY")
	assert.Contains(t, out, "#1")
}

// countersForActivity builds counters whose weighted activity equals n for a
// standard identity (messages weigh 1).
func countersForActivity(n uint64) reputation.Counters {
	return reputation.Counters{MessagesSent: n}
}

func TestRender_TierFlagsAreAdditive(t *testing.T) {
	flags := []string{"shape-osc", "symbol-shimmer", "pulse", "ring-g1", "particle"}
	unlockedAt := []int{1, 1, 2, 3, 4} // tier index that introduces each flag

	// Activity values squarely inside each tier band.
	activities := []uint64{0, 10, 100, 500, 2000}

	for tierIdx, activity := range activities {
		snap := Snapshot{
			ID:       7,
			Counters: countersForActivity(activity),
			// Enough height for all 8 rings so ring groups can appear.
			CreatedAt: 0,
			Height:    1000,
		}
		out := renderString(t, snap)
		for i, flag := range flags {
			if tierIdx >= unlockedAt[i] {
				assert.Contains(t, out, flag, "tier %d should carry %q", tierIdx, flag)
			} else {
				assert.NotContains(t, out, flag, "tier %d should not carry %q", tierIdx, flag)
			}
		}
	}
}

func TestRender_ConfigSelectsTemplates(t *testing.T) {
	snap := Snapshot{
		ID:         1,
		Privileged: true,
		// hexagon, gold on deep blue, eye symbol, circuit pattern
		Config:   []byte{0, 255, 215, 0, 26, 26, 46, 1, 4},
		Counters: countersForActivity(10), // Tier1 so the pattern overlay draws
	}
	out := renderString(t, snap)

	assert.Contains(t, out, `points="250,170 319,210 319,290 250,330 181,290 181,210"`, "hexagon shape")
	assert.Contains(t, out, "#ffd700", "primary color renders lowercase hex")
	assert.Contains(t, out, "#1a1a2e", "secondary color fills the background")
	assert.Contains(t, out, "<ellipse", "eye symbol")
	assert.Contains(t, out, "FOUNDER")
}

func TestRender_SelectorBytesWrapModulo(t *testing.T) {
	// Shape byte 6 wraps to 0 (hexagon), symbol 9 wraps to 1 (eye).
	cfg := ParseConfig([]byte{6, 1, 2, 3, 4, 5, 6, 9, 11}, false)
	assert.Equal(t, 0, cfg.Shape)
	assert.Equal(t, 1, cfg.Symbol)
	assert.Equal(t, 5, cfg.Pattern)
}

func TestParseConfig_ShortConfigUsesWholeDefaultPalette(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {1, 2, 3, 4, 5, 6, 7, 8}} {
		priv := ParseConfig(raw, true)
		assert.Equal(t, defaultPrivileged, priv)
		std := ParseConfig(raw, false)
		assert.Equal(t, defaultStandard, std)
	}
}

func TestRender_NameIsEscaped(t *testing.T) {
	out := renderString(t, Snapshot{ID: 1, Name: `<b>&"x"</b>`})
	assert.Contains(t, out, "&lt;b&gt;&amp;&quot;x&quot;&lt;/b&gt;")
	assert.NotContains(t, out, "<b>")
}

func TestAgeRings(t *testing.T) {
	cases := []struct {
		created, current uint64
		want             int
	}{
		{0, 0, 0},
		{5, 3, 0}, // clock behind creation never underflows
		{0, 99, 0},
		{0, 100, 1},
		{0, 199, 1},
		{0, 799, 7},
		{0, 800, 8},
		{0, 100000, MaxRings},
	}
	for _, tc := range cases {
		got := AgeRings(id.Height(tc.created), id.Height(tc.current))
		assert.Equal(t, tc.want, got, "created=%d current=%d", tc.created, tc.current)
	}
}

func TestCompassSlot_DistinctAndOrdered(t *testing.T) {
	for n := 1; n <= 8; n++ {
		seen := make(map[int]bool)
		prev := -1
		for i := 0; i < n; i++ {
			slot := compassSlot(i, n)
			require.GreaterOrEqual(t, slot, 0)
			require.Less(t, slot, 8)
			assert.False(t, seen[slot], "n=%d: slot %d assigned twice", n, slot)
			seen[slot] = true
			assert.Greater(t, slot, prev, "n=%d: slots must be clockwise-ordered", n)
			prev = slot
		}
	}
	// Full house occupies every slot in order.
	for i := 0; i < 8; i++ {
		assert.Equal(t, i, compassSlot(i, 8))
	}
}

func TestRender_ActivityMarkersAndTicks(t *testing.T) {
	snap := Snapshot{
		ID:       1,
		Counters: reputation.Counters{MessagesSent: 25, StorageWrites: 3, ModulesActive: 12},
	}
	out := renderString(t, snap)

	assert.Equal(t, 8, strings.Count(out, `r="6"`), "markers cap at the 8 compass slots")
	assert.Equal(t, TickCap, strings.Count(out, `x1="28"`), "message ticks cap at 20")
	assert.Equal(t, 3, strings.Count(out, `x1="460"`))
	assert.Contains(t, out, "MSG 25 / ST 3 / MOD 12")
}

func TestFallback_NeverFailsAndLabels(t *testing.T) {
	out := string(Fallback(Snapshot{ID: 9}))
	assert.Contains(t, out, `x="240"`)
	assert.Contains(t, out, "#9")
	assert.NotContains(t, out, "FOUNDER")

	named := string(Fallback(Snapshot{ID: 3, Name: "a<b", Privileged: true}))
	assert.Contains(t, named, "a&lt;b")
	assert.Contains(t, named, "FOUNDER")
}
