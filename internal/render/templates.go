package render

import (
	"fmt"
	"strings"
)

// Fixed geometry templates. Every coordinate is a precomputed integer;
// selectors index into these tables after the modulo reduction in
// ParseConfig.

// shapePoints holds the polygon templates for the central shape. Index 4
// is the circle special case handled in writeShape.
var shapePoints = [ShapeCount]string{
	// hexagon
	"250,170 319,210 319,290 250,330 181,290 181,210",
	// triangle
	"250,170 319,310 181,310",
	// diamond
	"250,170 330,250 250,330 170,250",
	// pentagon
	"250,170 326,225 297,315 203,315 174,225",
	// circle (unused, see writeShape)
	"",
	// octagon
	"217,170 283,170 330,217 330,283 283,330 217,330 170,283 170,217",
}

func writeShape(b *strings.Builder, shape int, primary RGB, class string) {
	attrs := fmt.Sprintf(`fill="none" stroke="%s" stroke-width="3"`, primary.Hex())
	if class != "" {
		attrs += fmt.Sprintf(` class="%s"`, class)
	}
	if shape == 4 {
		fmt.Fprintf(b, `<circle cx="250" cy="250" r="80" %s/>`, attrs)
		return
	}
	fmt.Fprintf(b, `<polygon points="%s" %s/>`, shapePoints[shape], attrs)
}

// writeSymbol emits one of the 8 central symbol templates at the canvas
// center, stroked in the primary color.
func writeSymbol(b *strings.Builder, symbol int, primary RGB, class string) {
	open := `<g`
	if class != "" {
		open += fmt.Sprintf(` class="%s"`, class)
	}
	fmt.Fprintf(b, `%s stroke="%s" fill="none" stroke-width="2">`, open, primary.Hex())
	switch symbol {
	case 0: // star
		b.WriteString(`<polygon points="250,225 256,243 275,243 260,254 266,272 250,261 234,272 240,254 225,243 244,243"/>`)
	case 1: // eye
		b.WriteString(`<ellipse cx="250" cy="250" rx="28" ry="16"/><circle cx="250" cy="250" r="8"/>`)
	case 2: // bolt
		b.WriteString(`<polygon points="255,225 240,252 250,252 245,275 262,248 252,248"/>`)
	case 3: // crescent
		b.WriteString(`<path d="M258,226 a26,26 0 1,0 0,48 a20,20 0 1,1 0,-48 Z"/>`)
	case 4: // sun
		b.WriteString(`<circle cx="250" cy="250" r="12"/>` +
			`<line x1="250" y1="228" x2="250" y2="222"/><line x1="250" y1="272" x2="250" y2="278"/>` +
			`<line x1="228" y1="250" x2="222" y2="250"/><line x1="272" y1="250" x2="278" y2="250"/>` +
			`<line x1="234" y1="234" x2="230" y2="230"/><line x1="266" y1="266" x2="270" y2="270"/>` +
			`<line x1="266" y1="234" x2="270" y2="230"/><line x1="234" y1="266" x2="230" y2="270"/>`)
	case 5: // shield
		b.WriteString(`<path d="M250,224 L274,232 L274,254 Q274,272 250,280 Q226,272 226,254 L226,232 Z"/>`)
	case 6: // cross
		b.WriteString(`<line x1="250" y1="226" x2="250" y2="274"/><line x1="226" y1="250" x2="274" y2="250"/>`)
	case 7: // spiral
		b.WriteString(`<polyline points="250,250 258,250 258,242 242,242 242,262 270,262 270,230 226,230 226,274 278,274"/>`)
	}
	b.WriteString(`</g>`)
}

// writePattern emits the pattern overlay. The template index selects the
// motif; complexity scales how many elements it emits. Complexity zero
// emits nothing at all.
func writePattern(b *strings.Builder, pattern, complexity int, primary RGB) {
	if complexity <= 0 {
		return
	}
	fmt.Fprintf(b, `<g stroke="%s" fill="%s" opacity="0.25">`, primary.Hex(), primary.Hex())
	switch pattern {
	case 0: // dots
		for i := 0; i < complexity; i++ {
			x := 70 + i*(360/complexity)
			fmt.Fprintf(b, `<circle cx="%d" cy="90" r="4"/><circle cx="%d" cy="410" r="4"/>`, x, x)
		}
	case 1: // grid
		for i := 0; i < complexity; i++ {
			p := 70 + i*(360/complexity)
			fmt.Fprintf(b, `<line x1="%d" y1="70" x2="%d" y2="430"/>`, p, p)
			fmt.Fprintf(b, `<line x1="70" y1="%d" x2="430" y2="%d"/>`, p, p)
		}
	case 2: // diagonals
		for i := 0; i < complexity; i++ {
			o := i * (400 / complexity)
			fmt.Fprintf(b, `<line x1="%d" y1="50" x2="%d" y2="450"/>`, 50+o, 100+o)
		}
	case 3: // waves
		for i := 0; i < complexity; i++ {
			y := 80 + i*(340/complexity)
			fmt.Fprintf(b, `<polyline points="70,%d 160,%d 250,%d 340,%d 430,%d" fill="none"/>`,
				y, y+12, y, y+12, y)
		}
	case 4: // circuits
		for i := 0; i < complexity; i++ {
			x := 80 + i*(340/complexity)
			y := 80 + ((i * 7) % 5 * 68)
			fmt.Fprintf(b, `<polyline points="%d,%d %d,%d %d,%d" fill="none"/>`,
				x, y, x+30, y, x+30, y+30)
			fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="3"/>`, x+30, y+30)
		}
	case 5: // crosshatch
		for i := 0; i < complexity; i++ {
			o := i * (360 / complexity)
			fmt.Fprintf(b, `<line x1="%d" y1="70" x2="%d" y2="430"/>`, 70+o, 430-o)
			fmt.Fprintf(b, `<line x1="%d" y1="70" x2="%d" y2="430"/>`, 430-o, 70+o)
		}
	}
	b.WriteString(`</g>`)
}
