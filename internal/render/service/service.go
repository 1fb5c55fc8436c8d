// Package service answers the render and metadata queries. Rendering is
// read-only: it never touches ledger state, so it can be called
// arbitrarily often.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync/atomic"

	identitymodels "sigil/internal/identity/models"
	"sigil/internal/render"
	rendercache "sigil/internal/render/cache"
	rendermetrics "sigil/internal/render/metrics"
	"sigil/internal/reputation"
	"sigil/internal/tier"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/circuit"
	"sigil/pkg/platform/sentinel"
)

// probeInterval is how often an open breaker lets a call through to test
// whether the renderer recovered.
const probeInterval = 8

// IdentityReader is the slice of the identity store the queries need.
type IdentityReader interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*identitymodels.Identity, error)
}

// HeightReader reads the ledger's logical clock.
type HeightReader interface {
	Current(ctx context.Context) (id.Height, error)
}

// Service serves render and metadata queries.
type Service struct {
	identities IdentityReader
	height     HeightReader
	renderer   render.Renderer
	breaker    *circuit.Breaker
	cache      *rendercache.RenderCache
	royaltyBps uint32

	logger  *slog.Logger
	metrics *rendermetrics.Metrics

	probes atomic.Uint64
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *rendermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRenderer replaces the built-in pipeline, for deployments that
// delegate image generation.
func WithRenderer(r render.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

func WithCache(c *rendercache.RenderCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithRoyaltyBps(bps uint32) Option {
	return func(s *Service) { s.royaltyBps = bps }
}

// New constructs the render service around the built-in pipeline.
func New(identities IdentityReader, height HeightReader, opts ...Option) *Service {
	s := &Service{
		identities: identities,
		height:     height,
		renderer:   render.NewPipeline(),
		breaker:    circuit.New("renderer", circuit.WithFailureThreshold(3)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Render returns the identity's current image. Renderer failures are the
// one non-fatal error class in the system: they degrade to the built-in
// fallback instead of failing the query.
func (s *Service) Render(ctx context.Context, identityID id.IdentityID) ([]byte, error) {
	snap, _, err := s.snapshot(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if image, ok := s.cache.Get(ctx, identityID); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return image, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	image := s.renderOrFallback(ctx, snap)
	s.cache.Set(ctx, identityID, image)
	if s.metrics != nil {
		s.metrics.RendersServed.Inc()
	}
	return image, nil
}

func (s *Service) renderOrFallback(ctx context.Context, snap render.Snapshot) []byte {
	if s.renderer == nil {
		return s.fallback(snap)
	}
	if s.breaker.IsOpen() && s.probes.Add(1)%probeInterval != 0 {
		return s.fallback(snap)
	}

	image, err := s.renderer.Render(ctx, snap)
	if err != nil || len(image) == 0 {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			if s.metrics != nil {
				s.metrics.BreakerOpens.Inc()
			}
			s.logger.WarnContext(ctx, "renderer breaker opened", "error", err)
		}
		return s.fallback(snap)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "renderer breaker closed")
	}
	return image
}

func (s *Service) fallback(snap render.Snapshot) []byte {
	if s.metrics != nil {
		s.metrics.Fallbacks.Inc()
	}
	return render.Fallback(snap)
}

func (s *Service) snapshot(ctx context.Context, identityID id.IdentityID) (render.Snapshot, *identitymodels.Identity, error) {
	ident, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return render.Snapshot{}, nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return render.Snapshot{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	current, err := s.height.Current(ctx)
	if err != nil {
		return render.Snapshot{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
	}
	return render.Snapshot{
		ID:         ident.ID,
		Name:       ident.Name,
		Privileged: ident.Privileged,
		Config:     ident.Config,
		CreatedAt:  ident.CreatedAt,
		Counters:   ident.Counters,
		Height:     current,
	}, ident, nil
}

// Attribute is one metadata trait entry.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Metadata bundles the render output with the identity's computed traits.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	RoyaltyBps  uint32      `json:"royalty_bps"`
	Attributes  []Attribute `json:"attributes"`
}

// Metadata returns the identity's metadata document. The image is the
// render output inlined as a data URI; renderer failures degrade the
// image, never the query.
func (s *Service) Metadata(ctx context.Context, identityID id.IdentityID) (*Metadata, error) {
	snap, ident, err := s.snapshot(ctx, identityID)
	if err != nil {
		return nil, err
	}

	image := s.renderOrFallback(ctx, snap)

	age := uint64(0)
	if snap.Height > snap.CreatedAt {
		age = uint64(snap.Height - snap.CreatedAt)
	}
	visualTier := tier.Compute(snap.Counters, snap.Privileged)
	score := reputation.Score(age, snap.Counters, snap.Privileged)

	name := snap.Name
	if name == "" {
		name = "Sigil #" + snap.ID.String()
	}

	return &Metadata{
		Name:        name,
		Description: ident.Bio,
		Image:       "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(image),
		RoyaltyBps:  s.royaltyBps,
		Attributes: []Attribute{
			{TraitType: "Privileged", Value: snap.Privileged},
			{TraitType: "Tier", Value: visualTier.Label()},
			{TraitType: "Age", Value: age},
			{TraitType: "Reputation", Value: score},
			{TraitType: "Messages Sent", Value: snap.Counters.MessagesSent},
			{TraitType: "Storage Writes", Value: snap.Counters.StorageWrites},
			{TraitType: "Modules Active", Value: snap.Counters.ModulesActive},
		},
	}, nil
}
