// Package tier maps an identity's activity onto a discrete visual tier.
//
// Tiers are cumulative: everything a lower tier contributes to the render
// remains present at every higher tier. The activity score here reuses the
// reputation weights but is an independent value; age never feeds it.
package tier

import "sigil/internal/reputation"

// Tier is a discrete visual-animation level, ordered ascending.
type Tier int

const (
	Dormant Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
)

// Ascending activation thresholds.
const (
	Tier1Threshold = 5
	Tier2Threshold = 50
	Tier3Threshold = 200
	Tier4Threshold = 1000
)

var labels = [...]string{"Dormant", "Active", "Established", "Luminary", "Mythic"}

// Label returns the human-readable tier name used in metadata attributes.
func (t Tier) Label() string {
	if t < Dormant || t > Tier4 {
		return labels[0]
	}
	return labels[t]
}

// AtLeast reports whether t meets or exceeds other.
func (t Tier) AtLeast(other Tier) bool { return t >= other }

// ActivityScore computes the tier-driving score: the weighted activity sum,
// scaled 1.5x (floor) for privileged identities.
func ActivityScore(counters reputation.Counters, privileged bool) uint64 {
	score := counters.Activity()
	if privileged {
		return score * 3 / 2
	}
	return score
}

// FromScore maps an activity score to its tier.
func FromScore(score uint64) Tier {
	switch {
	case score >= Tier4Threshold:
		return Tier4
	case score >= Tier3Threshold:
		return Tier3
	case score >= Tier2Threshold:
		return Tier2
	case score >= Tier1Threshold:
		return Tier1
	default:
		return Dormant
	}
}

// Compute is the convenience composition of ActivityScore and FromScore.
func Compute(counters reputation.Counters, privileged bool) Tier {
	return FromScore(ActivityScore(counters, privileged))
}

// Complexity returns the pattern-overlay complexity derived solely from the
// tier. Zero means the overlay emits nothing.
func (t Tier) Complexity() int {
	switch t {
	case Tier1:
		return 2
	case Tier2:
		return 5
	case Tier3:
		return 8
	case Tier4:
		return 10
	default:
		return 0
	}
}
