// Package reputation computes the composite reputation score.
//
// The formula is the single source of externally visible reputation.
// External scores written through the scorer channel are a separate store
// and are deliberately never folded in here.
package reputation

// Counters carries the activity counters a score is computed from.
type Counters struct {
	MessagesSent  uint64
	StorageWrites uint64
	ModulesActive uint64
}

// Activity returns the weighted activity sum shared with the tier engine.
func (c Counters) Activity() uint64 {
	return c.MessagesSent + c.StorageWrites*2 + c.ModulesActive*10
}

// Score computes the composite reputation score. Privileged identities get
// a fixed 1.5x multiplier with floor division.
func Score(ageUnits uint64, counters Counters, privileged bool) uint64 {
	raw := ageUnits + counters.Activity()
	if privileged {
		return raw * 150 / 100
	}
	return raw
}
