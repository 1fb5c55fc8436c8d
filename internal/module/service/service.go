// Package service implements the capability-module catalog: global
// write-once registration and per-identity activation slots.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	identitymodels "sigil/internal/identity/models"
	"sigil/internal/module/models"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
	"sigil/pkg/platform/opguard"
	"sigil/pkg/platform/sentinel"
	"sigil/pkg/platform/tx"
	"sigil/pkg/requestcontext"
)

// CatalogStore persists module descriptors and activation slots.
type CatalogStore interface {
	RegisterIfAvailable(ctx context.Context, desc *models.Descriptor) error
	FindDescriptor(ctx context.Context, key id.ModuleKey) (*models.Descriptor, error)
	ListDescriptors(ctx context.Context) ([]models.Descriptor, error)
	CountActive(ctx context.Context, identityID id.IdentityID) (int, error)
	IsActive(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) (bool, error)
	Activate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey, height id.Height) error
	Deactivate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) error
}

// IdentityLedger is the slice of the identity service the catalog needs:
// locked access to the identity record for the ownership check and the
// modules-active counter.
type IdentityLedger interface {
	Execute(ctx context.Context, identityID id.IdentityID, validate func(*identitymodels.Identity) error, mutate func(*identitymodels.Identity)) (*identitymodels.Identity, error)
}

// HeightStore is the ledger's logical clock.
type HeightStore interface {
	Current(ctx context.Context) (id.Height, error)
	Advance(ctx context.Context) (id.Height, error)
}

// AuditPublisher records one event per committed mutation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CacheInvalidator drops cached render output for an identity.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, identityID id.IdentityID)
}

// Service is the module catalog.
type Service struct {
	catalog    CatalogStore
	identities IdentityLedger
	height     HeightStore
	treasury   treasury.Forwarder
	tx         tx.Runner
	guard      *opguard.Guard

	logger *slog.Logger
	audit  AuditPublisher
	cache  CacheInvalidator
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

// WithPayableGuard shares the ledger's operation guard so payable entry
// points serialize across services.
func WithPayableGuard(guard *opguard.Guard) Option {
	return func(s *Service) { s.guard = guard }
}

func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(s *Service) { s.cache = cache }
}

// New constructs the catalog service.
func New(catalog CatalogStore, identities IdentityLedger, height HeightStore, forwarder treasury.Forwarder, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		catalog:    catalog,
		identities: identities,
		height:     height,
		treasury:   forwarder,
		tx:         runner,
		tracer:     otel.Tracer("sigil/module"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) emit(ctx context.Context, action audit.LedgerEvent, height id.Height, identityID id.IdentityID, key id.ModuleKey, amount id.Amount) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Height:    height,
		Identity:  identityID,
		Account:   requestcontext.Caller(ctx),
		Action:    string(action),
		Detail:    string(key),
		Amount:    amount,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit ledger event",
			"action", action, "module", key, "error", err)
	}
}

// Register adds a module descriptor to the global catalog. Admin-gated
// at the transport; write-once here.
func (s *Service) Register(ctx context.Context, key id.ModuleKey, capabilityRef string, premium bool, premiumCost id.Amount) (*models.Descriptor, error) {
	ctx, span := s.tracer.Start(ctx, "module.Register")
	defer span.End()
	span.SetAttributes(attribute.String("module.key", string(key)))

	var registered *models.Descriptor
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		desc, err := models.NewDescriptor(key, capabilityRef, premium, premiumCost, height)
		if err != nil {
			return err
		}
		if err := s.catalog.RegisterIfAvailable(txCtx, desc); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "module %q is already registered", key)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register module")
		}
		s.emit(txCtx, audit.EventModuleRegistered, height, 0, key, 0)
		registered = desc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// Activate turns a module on for an identity.
//
// Capacity is 8 slots for privileged identities and 5 for standard ones.
// Premium modules require payment >= the registered cost; the full
// received payment is forwarded to the treasury and a forwarding failure
// aborts the activation.
func (s *Service) Activate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey, payment id.Amount) error {
	account := requestcontext.Caller(ctx)
	if account.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	if s.guard != nil {
		if err := s.guard.Acquire(); err != nil {
			return err
		}
		defer s.guard.Release()
	}

	ctx, span := s.tracer.Start(ctx, "module.Activate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("identity.id", int64(identityID)),
		attribute.String("module.key", string(key)),
	)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		desc, err := s.catalog.FindDescriptor(txCtx, key)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "module %q is not registered", key)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load module descriptor")
		}
		if desc.Premium && payment < desc.PremiumCost {
			return dErrors.Newf(dErrors.CodePaymentRequired,
				"module %q requires %d base units, received %d", key, desc.PremiumCost, payment)
		}

		alreadyActive, err := s.catalog.IsActive(txCtx, identityID, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read activation state")
		}
		if alreadyActive {
			return dErrors.Newf(dErrors.CodeConflict, "module %q is already active", key)
		}
		active, err := s.catalog.CountActive(txCtx, identityID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count active modules")
		}

		// Ownership and capacity checks, no mutation yet: all validation
		// must pass before the payment moves.
		if _, err := s.identities.Execute(txCtx, identityID,
			func(i *identitymodels.Identity) error {
				if !i.IsOwnedBy(account) {
					return dErrors.New(dErrors.CodeForbidden, "caller does not own this identity")
				}
				if active >= i.ModuleCapacity() {
					return dErrors.Newf(dErrors.CodeInvariantViolation,
						"identity has no free module slots (capacity %d)", i.ModuleCapacity())
				}
				return nil
			},
			func(*identitymodels.Identity) {},
		); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "identity not found")
			}
			return err
		}

		// Validation done; forward before the slot flips so a treasury
		// failure aborts cleanly.
		if err := s.treasury.Forward(txCtx, account, payment); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "payment forwarding failed")
		}

		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		if err := s.catalog.Activate(txCtx, identityID, key, height); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Newf(dErrors.CodeConflict, "module %q is already active", key)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate module")
		}
		if _, err := s.identities.Execute(txCtx, identityID, nil,
			func(i *identitymodels.Identity) {
				i.Counters.ModulesActive++
			},
		); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record activation")
		}
		s.emit(txCtx, audit.EventModuleActivated, height, identityID, key, payment)
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, identityID)
	}
	s.logger.InfoContext(ctx, "module activated",
		"identity_id", identityID, "module", key, "payment", payment)
	return nil
}

// Deactivate turns a module off, freeing its slot. This is the only path
// that decrements the modules-active counter.
func (s *Service) Deactivate(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) error {
	account := requestcontext.Caller(ctx)
	if account.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}

	ctx, span := s.tracer.Start(ctx, "module.Deactivate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("identity.id", int64(identityID)),
		attribute.String("module.key", string(key)),
	)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		active, err := s.catalog.IsActive(txCtx, identityID, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read activation state")
		}
		if !active {
			return dErrors.Newf(dErrors.CodeConflict, "module %q is not active", key)
		}
		if _, err := s.identities.Execute(txCtx, identityID,
			func(i *identitymodels.Identity) error {
				if !i.IsOwnedBy(account) {
					return dErrors.New(dErrors.CodeForbidden, "caller does not own this identity")
				}
				return i.CanDecrementModules()
			},
			func(i *identitymodels.Identity) {
				i.Counters.ModulesActive--
			},
		); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "identity not found")
			}
			return err
		}
		if err := s.catalog.Deactivate(txCtx, identityID, key); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Newf(dErrors.CodeConflict, "module %q is not active", key)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate module")
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		s.emit(txCtx, audit.EventModuleDeactivated, height, identityID, key, 0)
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, identityID)
	}
	return nil
}

// IsActive reports whether an identity currently has a module active.
func (s *Service) IsActive(ctx context.Context, identityID id.IdentityID, key id.ModuleKey) (bool, error) {
	active, err := s.catalog.IsActive(ctx, identityID, key)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read activation state")
	}
	return active, nil
}

// List returns every registered module descriptor ordered by key.
func (s *Service) List(ctx context.Context) ([]models.Descriptor, error) {
	descs, err := s.catalog.ListDescriptors(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list modules")
	}
	return descs, nil
}

// Describe returns one registered descriptor.
func (s *Service) Describe(ctx context.Context, key id.ModuleKey) (*models.Descriptor, error) {
	desc, err := s.catalog.FindDescriptor(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "module %q is not registered", key)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load module descriptor")
	}
	return desc, nil
}
