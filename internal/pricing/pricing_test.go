package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "sigil/pkg/domain"
)

func TestPriceRegimes(t *testing.T) {
	assert.Equal(t, FounderPrice, Price(1))
	assert.Equal(t, FounderPrice, Price(FounderCap))
	assert.Equal(t, FlatPrice, Price(FounderCap+1))
	assert.Equal(t, FlatPrice, Price(FlatCap))
}

func TestPriceCurveBoundaries(t *testing.T) {
	// First id past the flat cap follows the literal formula.
	assert.Equal(t, CurveBase+1*CurveScale, Price(FlatCap+1))
	// A hundred ids in, the quadratic term dominates.
	assert.Equal(t, CurveBase+100*100*CurveScale, Price(FlatCap+101))
}

func TestPriceMonotonicNonDecreasing(t *testing.T) {
	prev := Price(1)
	for next := id.IdentityID(2); next <= FlatCap+500; next++ {
		p := Price(next)
		if p < prev {
			t.Fatalf("price decreased at id %d: %d < %d", next, p, prev)
		}
		prev = p
	}
}
