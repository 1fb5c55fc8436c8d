package render

import "fmt"

// Visual configuration bytes: [shape, pR, pG, pB, sR, sG, sB, symbol, pattern].
const (
	// ShapeCount, SymbolCount, and PatternCount bound the template
	// selectors; raw bytes are reduced modulo these.
	ShapeCount   = 6
	SymbolCount  = 8
	PatternCount = 6
)

// RGB is a solid color. Hex renders lowercase, which is part of the
// byte-identical output contract.
type RGB struct {
	R, G, B uint8
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// VisualConfig is the parsed, bounded form of an identity's config bytes.
type VisualConfig struct {
	Shape     int
	Primary   RGB
	Secondary RGB
	Symbol    int
	Pattern   int
}

// Default palettes substituted when the stored config is shorter than the
// full nine bytes. Privileged identities default to gold on deep blue;
// standard ones to steel blue on near-black.
var (
	defaultPrivileged = VisualConfig{
		Shape:     0,
		Primary:   RGB{R: 255, G: 215, B: 0},
		Secondary: RGB{R: 26, G: 26, B: 46},
		Symbol:    1,
		Pattern:   4,
	}
	defaultStandard = VisualConfig{
		Shape:     0,
		Primary:   RGB{R: 96, G: 165, B: 250},
		Secondary: RGB{R: 30, G: 30, B: 30},
		Symbol:    0,
		Pattern:   0,
	}
)

// ParseConfig reduces raw config bytes to a bounded VisualConfig. A short
// config selects the whole default palette for the privilege class rather
// than mixing stored and default fields.
func ParseConfig(raw []byte, privileged bool) VisualConfig {
	if len(raw) < 9 {
		if privileged {
			return defaultPrivileged
		}
		return defaultStandard
	}
	return VisualConfig{
		Shape:     int(raw[0]) % ShapeCount,
		Primary:   RGB{R: raw[1], G: raw[2], B: raw[3]},
		Secondary: RGB{R: raw[4], G: raw[5], B: raw[6]},
		Symbol:    int(raw[7]) % SymbolCount,
		Pattern:   int(raw[8]) % PatternCount,
	}
}
