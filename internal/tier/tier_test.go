package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sigil/internal/reputation"
)

func TestFromScoreThresholds(t *testing.T) {
	assert.Equal(t, Dormant, FromScore(0))
	assert.Equal(t, Dormant, FromScore(4))
	assert.Equal(t, Tier1, FromScore(5))
	assert.Equal(t, Tier1, FromScore(49))
	assert.Equal(t, Tier2, FromScore(50))
	assert.Equal(t, Tier3, FromScore(200))
	assert.Equal(t, Tier4, FromScore(1000))
	assert.Equal(t, Tier4, FromScore(50_000))
}

func TestActivityScorePrivilegedScaling(t *testing.T) {
	c := reputation.Counters{MessagesSent: 3} // activity 3
	assert.Equal(t, uint64(3), ActivityScore(c, false))
	// floor(3*3/2) = 4
	assert.Equal(t, uint64(4), ActivityScore(c, true))
}

func TestPrivilegedScalingCrossesThreshold(t *testing.T) {
	// Activity 4 is Dormant for a standard identity but scales to 6 for a
	// privileged one, crossing into Tier1.
	c := reputation.Counters{MessagesSent: 4}
	assert.Equal(t, Dormant, Compute(c, false))
	assert.Equal(t, Tier1, Compute(c, true))
}

func TestComplexityByTier(t *testing.T) {
	assert.Equal(t, 0, Dormant.Complexity())
	assert.Equal(t, 2, Tier1.Complexity())
	assert.Equal(t, 5, Tier2.Complexity())
	assert.Equal(t, 8, Tier3.Complexity())
	assert.Equal(t, 10, Tier4.Complexity())
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Dormant", Dormant.Label())
	assert.Equal(t, "Mythic", Tier4.Label())
}
