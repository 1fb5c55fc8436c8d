package render

import id "sigil/pkg/domain"

// Canvas geometry. All coordinates are integers; the pipeline never
// touches floating point, which is what makes output byte-stable.
const (
	// CanvasSize is the square canvas edge in user units.
	CanvasSize = 500
	// Center is the tiered pipeline's composition center.
	Center = 250
	// FallbackLabelX is the fallback image's label anchor. It predates
	// the tiered pipeline's center and is kept as-is so existing
	// fallback output stays byte-identical.
	FallbackLabelX = 240

	// RingPeriod is the height interval that grows one age ring.
	RingPeriod = 100
	// MaxRings bounds the age rings.
	MaxRings = 8

	// CompassRadius is the module marker ring radius.
	CompassRadius = 180
	// TickCap bounds the message/storage tick marks per side.
	TickCap = 20
)

// compassOffsets are the 8 precomputed (x, y) marker offsets at
// CompassRadius, clockwise from north. 127 approximates radius/sqrt2.
var compassOffsets = [8][2]int{
	{0, -180},
	{127, -127},
	{180, 0},
	{127, 127},
	{0, 180},
	{-127, 127},
	{-180, 0},
	{-127, -127},
}

// AgeRings returns how many age rings the identity has earned at the
// given height.
func AgeRings(created, current id.Height) int {
	if current <= created {
		return 0
	}
	rings := int((current - created) / RingPeriod)
	if rings > MaxRings {
		return MaxRings
	}
	return rings
}

// compassSlot maps marker i of n onto one of the 8 compass slots using
// integer round-half-up arithmetic: round(i*8/n) mod 8.
func compassSlot(i, n int) int {
	return ((i*16 + n) / (2 * n)) % 8
}
