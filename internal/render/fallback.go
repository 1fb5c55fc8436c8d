package render

import (
	"fmt"
	"strings"
)

// Fallback produces the minimal built-in image: background, frame,
// identity label, and the privileged badge. It is the answer when no
// renderer is configured or the configured one fails, and it can itself
// never fail.
func Fallback(snap Snapshot) []byte {
	cfg := ParseConfig(snap.Config, snap.Privileged)
	hex := cfg.Primary.Hex()

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		CanvasSize, CanvasSize, CanvasSize, CanvasSize)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		CanvasSize, CanvasSize, cfg.Secondary.Hex())
	fmt.Fprintf(&b, `<rect x="10" y="10" width="480" height="480" fill="none" stroke="%s" stroke-width="2"/>`, hex)
	label := "#" + snap.ID.String()
	if snap.Name != "" {
		label = textEscaper.Replace(snap.Name)
	}
	fmt.Fprintf(&b, `<text x="%d" y="250" text-anchor="middle" font-family="monospace" font-size="20" fill="%s">%s</text>`,
		FallbackLabelX, hex, label)
	if snap.Privileged {
		fmt.Fprintf(&b, `<text x="%d" y="280" text-anchor="middle" font-family="monospace" font-size="12" fill="%s">FOUNDER</text>`,
			FallbackLabelX, hex)
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
