// Package pricing computes the creation price for the next identity.
//
// The curve has three regimes: a flat founder price for the privileged
// cohort, a flat standard price for the next block of ids, and a quadratic
// bonding curve beyond that. All arithmetic is integer-only; the only
// rounding anywhere is truncation.
package pricing

import id "sigil/pkg/domain"

const (
	// FounderCap is the last id sold at the founder price. It doubles as
	// the privileged-cohort boundary used by the ledger.
	FounderCap id.IdentityID = 1_000
	// FlatCap is the last id sold at the flat standard price.
	FlatCap id.IdentityID = 5_000

	// FounderPrice applies to ids 1..FounderCap.
	FounderPrice id.Amount = 1_000_000
	// FlatPrice applies to ids FounderCap+1..FlatCap.
	FlatPrice id.Amount = 5_000_000

	// CurveBase and CurveScale parameterize the quadratic regime:
	// price = CurveBase + (nextID-FlatCap)^2 * CurveScale.
	// CurveBase equals FlatPrice, so the curve is continuous at FlatCap by
	// its own formula rather than by interpolation.
	CurveBase  id.Amount = 5_000_000
	CurveScale id.Amount = 1_000
)

// Price returns the creation price for the identity that would receive
// nextID. Monotonic non-decreasing over the whole domain.
func Price(nextID id.IdentityID) id.Amount {
	switch {
	case nextID <= FounderCap:
		return FounderPrice
	case nextID <= FlatCap:
		return FlatPrice
	default:
		n := id.Amount(nextID - FlatCap)
		return CurveBase + n*n*CurveScale
	}
}
