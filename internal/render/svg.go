// Package render turns an identity snapshot into a layered SVG image.
//
// The pipeline is a pure function of the snapshot: identical inputs
// produce byte-identical output. All geometry is integer arithmetic and
// every collection is walked in a fixed order; there is no randomness,
// no clock, and no floating point.
package render

import (
	"context"
	"fmt"
	"strings"

	"sigil/internal/reputation"
	"sigil/internal/tier"
	id "sigil/pkg/domain"
)

// Snapshot is the read-only identity state the pipeline consumes.
type Snapshot struct {
	ID         id.IdentityID
	Name       string
	Privileged bool
	Config     []byte
	CreatedAt  id.Height
	Counters   reputation.Counters
	Height     id.Height
}

// Renderer produces the image bytes for a snapshot. The built-in
// Pipeline is the default implementation; alternative renderers plug in
// behind the same interface and fall back through the circuit breaker.
type Renderer interface {
	Render(ctx context.Context, snap Snapshot) ([]byte, error)
}

// Pipeline is the built-in tiered SVG renderer.
type Pipeline struct{}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;",
)

// Render composes the full layered image. It never returns an error; the
// signature satisfies Renderer so external implementations can replace it.
func (p *Pipeline) Render(_ context.Context, snap Snapshot) ([]byte, error) {
	cfg := ParseConfig(snap.Config, snap.Privileged)
	visualTier := tier.Compute(snap.Counters, snap.Privileged)
	complexity := visualTier.Complexity()
	rings := AgeRings(snap.CreatedAt, snap.Height)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		CanvasSize, CanvasSize, CanvasSize, CanvasSize)

	writeStyle(&b, visualTier)
	writeBackground(&b, cfg)
	writeFrame(&b, cfg, snap.Privileged)
	writeRings(&b, cfg, rings, visualTier)
	writeShape(&b, cfg.Shape, cfg.Primary, shapeClass(visualTier))
	writePattern(&b, cfg.Pattern, complexity, cfg.Primary)
	writeSymbol(&b, cfg.Symbol, cfg.Primary, symbolClass(visualTier))
	writeActivity(&b, cfg, snap.Counters, visualTier)
	writeGlow(&b, cfg, visualTier)
	writeParticles(&b, cfg, visualTier)
	writeLabels(&b, cfg, snap)
	writeTierBadge(&b, cfg, visualTier)
	writeStats(&b, cfg, snap.Counters)

	b.WriteString(`</svg>`)
	return []byte(b.String()), nil
}

func shapeClass(t tier.Tier) string {
	if t.AtLeast(tier.Tier1) {
		return "shape-osc"
	}
	return ""
}

func symbolClass(t tier.Tier) string {
	if t.AtLeast(tier.Tier1) {
		return "symbol-shimmer"
	}
	return ""
}

// writeStyle emits the animation declarations the tier has unlocked.
// Flags are strictly additive: each tier's block contains everything the
// tier below it had. Dormant emits no style element at all.
func writeStyle(b *strings.Builder, t tier.Tier) {
	if !t.AtLeast(tier.Tier1) {
		return
	}
	b.WriteString(`<style>`)
	b.WriteString(`@keyframes osc{0%,100%{transform:rotate(-2deg)}50%{transform:rotate(2deg)}}`)
	b.WriteString(`@keyframes shimmer{0%,100%{opacity:1}50%{opacity:0.55}}`)
	b.WriteString(`.shape-osc{transform-origin:250px 250px;animation:osc 6s ease-in-out infinite}`)
	b.WriteString(`.symbol-shimmer{animation:shimmer 4s ease-in-out infinite}`)
	if t.AtLeast(tier.Tier2) {
		b.WriteString(`@keyframes pulse{0%,100%{opacity:0.9}50%{opacity:0.4}}`)
		b.WriteString(`.pulse{animation:pulse 3s ease-in-out infinite}`)
	}
	if t.AtLeast(tier.Tier3) {
		b.WriteString(`@keyframes spin{from{transform:rotate(0deg)}to{transform:rotate(360deg)}}`)
		b.WriteString(`@keyframes spinback{from{transform:rotate(360deg)}to{transform:rotate(0deg)}}`)
		b.WriteString(`.ring-g1{transform-origin:250px 250px;animation:spin 24s linear infinite}`)
		b.WriteString(`.ring-g2{transform-origin:250px 250px;animation:spinback 36s linear infinite}`)
		b.WriteString(`.ring-g3{transform-origin:250px 250px;animation:spin 48s linear infinite}`)
	}
	if t.AtLeast(tier.Tier4) {
		b.WriteString(`@keyframes drift{0%,100%{transform:translate(0,0)}50%{transform:translate(6px,-10px)}}`)
		b.WriteString(`.particle{animation:drift 7s ease-in-out infinite}`)
		b.WriteString(`.badge-pulse{animation:pulse 2s ease-in-out infinite}`)
	}
	b.WriteString(`</style>`)
}

func writeBackground(b *strings.Builder, cfg VisualConfig) {
	fmt.Fprintf(b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		CanvasSize, CanvasSize, cfg.Secondary.Hex())
}

// writeFrame draws the outer border. Privileged identities get the
// double-border treatment.
func writeFrame(b *strings.Builder, cfg VisualConfig, privileged bool) {
	fmt.Fprintf(b, `<rect x="10" y="10" width="480" height="480" fill="none" stroke="%s" stroke-width="2"/>`,
		cfg.Primary.Hex())
	if privileged {
		fmt.Fprintf(b, `<rect x="18" y="18" width="464" height="464" fill="none" stroke="%s" stroke-width="1"/>`,
			cfg.Primary.Hex())
	}
}

// ringGroups partitions the 8 ring slots into the three rotation groups
// used from Tier3 up: 1-3, 4-5, 6-8.
var ringGroups = [3][2]int{{1, 3}, {4, 5}, {6, 8}}

func writeRings(b *strings.Builder, cfg VisualConfig, rings int, t tier.Tier) {
	if rings == 0 {
		return
	}
	ring := func(i int) {
		fmt.Fprintf(b, `<circle cx="250" cy="250" r="%d" fill="none" stroke="%s" stroke-width="1" stroke-dasharray="6 10" opacity="0.5"/>`,
			100+i*15, cfg.Primary.Hex())
	}
	if !t.AtLeast(tier.Tier3) {
		for i := 1; i <= rings; i++ {
			ring(i)
		}
		return
	}
	for g, bounds := range ringGroups {
		if bounds[0] > rings {
			break
		}
		fmt.Fprintf(b, `<g class="ring-g%d">`, g+1)
		for i := bounds[0]; i <= bounds[1] && i <= rings; i++ {
			ring(i)
		}
		b.WriteString(`</g>`)
	}
}

// writeActivity draws the module compass markers and the message/storage
// tick columns.
func writeActivity(b *strings.Builder, cfg VisualConfig, counters reputation.Counters, t tier.Tier) {
	markers := int(counters.ModulesActive)
	if markers > 8 {
		markers = 8
	}
	class := ""
	if t.AtLeast(tier.Tier2) {
		class = ` class="pulse"`
	}
	for i := 0; i < markers; i++ {
		offset := compassOffsets[compassSlot(i, markers)]
		fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="6" fill="%s"%s/>`,
			Center+offset[0], Center+offset[1], cfg.Primary.Hex(), class)
	}

	ticks := func(count uint64, x1, x2 int) {
		n := int(count)
		if n > TickCap {
			n = TickCap
		}
		for i := 0; i < n; i++ {
			y := 100 + i*10
			fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2" opacity="0.6"/>`,
				x1, y, x2, y, cfg.Primary.Hex())
		}
	}
	ticks(counters.MessagesSent, 28, 40)
	ticks(counters.StorageWrites, 460, 472)
}

func writeGlow(b *strings.Builder, cfg VisualConfig, t tier.Tier) {
	opacity := "0.08"
	if t.AtLeast(tier.Tier3) {
		opacity = "0.15"
	}
	class := ""
	if t.AtLeast(tier.Tier2) {
		class = ` class="pulse"`
	}
	fmt.Fprintf(b, `<circle cx="250" cy="250" r="140" fill="%s" opacity="%s"%s/>`,
		cfg.Primary.Hex(), opacity, class)
}

// particlePositions are the five fixed Tier4 particles. The delays reuse
// the first slot, giving four distinct stagger values across five
// particles.
var particlePositions = [5][3]string{
	{"120", "140", "0s"},
	{"380", "120", ".5s"},
	{"400", "360", "1s"},
	{"130", "390", "1.5s"},
	{"250", "90", "0s"},
}

func writeParticles(b *strings.Builder, cfg VisualConfig, t tier.Tier) {
	if !t.AtLeast(tier.Tier4) {
		return
	}
	for _, p := range particlePositions {
		fmt.Fprintf(b, `<circle cx="%s" cy="%s" r="3" fill="%s" class="particle" style="animation-delay:%s"/>`,
			p[0], p[1], cfg.Primary.Hex(), p[2])
	}
}

func writeLabels(b *strings.Builder, cfg VisualConfig, snap Snapshot) {
	hex := cfg.Primary.Hex()
	fmt.Fprintf(b, `<text x="250" y="42" text-anchor="middle" font-family="monospace" font-size="18" fill="%s">SIGIL IDENTITY</text>`, hex)
	if snap.Name != "" {
		fmt.Fprintf(b, `<text x="250" y="455" text-anchor="middle" font-family="monospace" font-size="16" fill="%s">%s</text>`,
			hex, textEscaper.Replace(snap.Name))
	}
	fmt.Fprintf(b, `<text x="250" y="475" text-anchor="middle" font-family="monospace" font-size="12" fill="%s">#%s</text>`,
		hex, snap.ID)
	if snap.Privileged {
		fmt.Fprintf(b, `<text x="455" y="42" text-anchor="end" font-family="monospace" font-size="12" fill="%s">FOUNDER</text>`, hex)
	}
}

func writeTierBadge(b *strings.Builder, cfg VisualConfig, t tier.Tier) {
	if t == tier.Dormant {
		return
	}
	class := ""
	if t.AtLeast(tier.Tier4) {
		class = ` class="badge-pulse"`
	}
	fmt.Fprintf(b, `<text x="45" y="42" text-anchor="start" font-family="monospace" font-size="12" fill="%s"%s>%s</text>`,
		cfg.Primary.Hex(), class, t.Label())
}

func writeStats(b *strings.Builder, cfg VisualConfig, counters reputation.Counters) {
	fmt.Fprintf(b, `<text x="250" y="492" text-anchor="middle" font-family="monospace" font-size="10" fill="%s">MSG %d / ST %d / MOD %d</text>`,
		cfg.Primary.Hex(), counters.MessagesSent, counters.StorageWrites, counters.ModulesActive)
}
