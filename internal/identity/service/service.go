// Package service implements the identity ledger's mutating operations
// and read queries.
//
// Every mutation runs inside the tx.Runner boundary, advances the logical
// height exactly once, and emits exactly one ledger event. Payable entry
// points additionally hold the operation guard for their full duration,
// rejecting nested reentry.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	identitymetrics "sigil/internal/identity/metrics"
	"sigil/internal/identity/models"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
	"sigil/pkg/platform/opguard"
	"sigil/pkg/platform/tx"
	"sigil/pkg/requestcontext"
)

// IdentityStore persists identity records, the name index, and the
// sequential id counter.
type IdentityStore interface {
	AllocateID(ctx context.Context) (id.IdentityID, error)
	PeekNextID(ctx context.Context) (id.IdentityID, error)
	Insert(ctx context.Context, ident *models.Identity) error
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	FindByName(ctx context.Context, name string) (*models.Identity, error)
	Execute(ctx context.Context, identityID id.IdentityID, validate func(*models.Identity) error, mutate func(*models.Identity)) (*models.Identity, error)
	Rename(ctx context.Context, identityID id.IdentityID, name string) (*models.Identity, error)
	Count(ctx context.Context) (uint64, error)
}

// AccountStore persists per-account mint state and the whitelist.
type AccountStore interface {
	Find(ctx context.Context, account id.AccountID) (*models.AccountState, error)
	Execute(ctx context.Context, account id.AccountID, validate func(*models.AccountState) error, mutate func(*models.AccountState)) (*models.AccountState, error)
}

// MessageStore appends and lists ledger messages.
type MessageStore interface {
	Append(ctx context.Context, msg models.Message) error
	ListByChannel(ctx context.Context, channel uint32) ([]models.Message, error)
	ListByRecipient(ctx context.Context, to id.IdentityID) ([]models.Message, error)
}

// StorageStore persists per-identity key-value slots.
type StorageStore interface {
	Put(ctx context.Context, slot models.StorageSlot) error
	Find(ctx context.Context, identityID id.IdentityID, key string) (*models.StorageSlot, error)
}

// ScoreStore persists external scores.
type ScoreStore interface {
	Set(ctx context.Context, score models.ExternalScore) error
	List(ctx context.Context, identityID id.IdentityID) ([]models.ExternalScore, error)
}

// SettingsStore persists the administrative switches.
type SettingsStore interface {
	Get(ctx context.Context) (models.Settings, error)
	Execute(ctx context.Context, mutate func(*models.Settings)) (models.Settings, error)
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

// CacheInvalidator drops cached render output for an identity. Mutations
// call it after commit so stale images never outlive a state change.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, identityID id.IdentityID)
}

// Service is the identity ledger.
type Service struct {
	identities IdentityStore
	accounts   AccountStore
	messages   MessageStore
	storage    StorageStore
	scores     ScoreStore
	settings   SettingsStore
	height     HeightStore
	treasury   treasury.Forwarder
	tx         tx.Runner

	logger  *slog.Logger
	audit   AuditPublisher
	metrics *identitymetrics.Metrics
	cache   CacheInvalidator
	tracer  trace.Tracer

	// guard rejects nested reentry into payable entry points and, held
	// for the operation's full duration, keeps the effects window closed
	// to any other payable call. Shared with the module catalog so all
	// payable entry points serialize on one guard.
	guard *opguard.Guard
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(s *Service) { s.cache = cache }
}

// WithPayableGuard shares an operation guard with other services that
// carry payable entry points.
func WithPayableGuard(guard *opguard.Guard) Option {
	return func(s *Service) { s.guard = guard }
}

// Stores bundles the persistence dependencies so the constructor stays
// readable at the call site.
type Stores struct {
	Identities IdentityStore
	Accounts   AccountStore
	Messages   MessageStore
	Storage    StorageStore
	Scores     ScoreStore
	Settings   SettingsStore
	Height     HeightStore
}

// New constructs the ledger service.
func New(stores Stores, forwarder treasury.Forwarder, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		identities: stores.Identities,
		accounts:   stores.Accounts,
		messages:   stores.Messages,
		storage:    stores.Storage,
		scores:     stores.Scores,
		settings:   stores.Settings,
		height:     stores.Height,
		treasury:   forwarder,
		tx:         runner,
		tracer:     otel.Tracer("sigil/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.guard == nil {
		s.guard = opguard.New()
	}
	return s
}

// acquireGuard takes the operation guard without blocking. A failed
// acquisition means a payable operation is already in flight.
func (s *Service) acquireGuard() error {
	return s.guard.Acquire()
}

func (s *Service) releaseGuard() {
	s.guard.Release()
}

// startSpan opens a tracing span around a ledger operation.
func (s *Service) startSpan(ctx context.Context, name string, identityID id.IdentityID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if !identityID.IsZero() {
		span.SetAttributes(attribute.Int64("identity.id", int64(identityID)))
	}
	return ctx, span
}

// emit records the single ledger event for a committed mutation.
func (s *Service) emit(ctx context.Context, action audit.LedgerEvent, height id.Height, identityID id.IdentityID, detail string, amount id.Amount) {
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Height:    height,
		Identity:  identityID,
		Account:   requestcontext.Caller(ctx),
		Action:    string(action),
		Detail:    detail,
		Amount:    amount,
		RequestID: requestcontext.RequestID(ctx),
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit ledger event",
			"action", action, "identity_id", identityID, "error", err)
	}
}

// invalidateRender drops the cached image for an identity after a
// mutation commits.
func (s *Service) invalidateRender(ctx context.Context, identityID id.IdentityID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, identityID)
	}
}

// caller returns the acting account or an unauthorized error.
func caller(ctx context.Context) (id.AccountID, error) {
	account := requestcontext.Caller(ctx)
	if account.IsZero() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	return account, nil
}
