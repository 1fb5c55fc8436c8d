// Package audit defines the registry's observable append-only event log.
//
// Every mutating ledger operation emits exactly one event. External
// indexers subscribe to the Kafka topics the outbox worker publishes to,
// rather than polling ledger state.
package audit

import (
	"context"
	"time"

	id "sigil/pkg/domain"
)

// EventCategory classifies events for topic routing and retention.
type EventCategory string

const (
	// CategoryRegistry covers identity state changes: mints, profile
	// updates, messages, storage writes, scores.
	CategoryRegistry EventCategory = "registry"
	// CategoryEconomic covers events that moved value to the treasury.
	CategoryEconomic EventCategory = "economic"
	// CategoryAdmin covers administrative switches: pause, whitelist,
	// admin mints, module registration.
	CategoryAdmin EventCategory = "admin"
)

// Event is emitted from ledger operations. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Height    id.Height
	Identity  id.IdentityID // zero when not scoped to one identity
	Account   id.AccountID  // acting account
	Action    string
	Detail    string    // field name, module key, score key, channel...
	Amount    id.Amount // value forwarded to the treasury, if any
	RequestID string
}

// LedgerEvent names every action the log can carry.
type LedgerEvent string

const (
	EventIdentityCreated     LedgerEvent = "identity_created"
	EventAdminMint           LedgerEvent = "admin_mint"
	EventNameUpdated         LedgerEvent = "name_updated"
	EventBioUpdated          LedgerEvent = "bio_updated"
	EventConfigUpdated       LedgerEvent = "config_updated"
	EventIdentityTransferred LedgerEvent = "identity_transferred"
	EventMessageSent         LedgerEvent = "message_sent"
	EventStorageWritten      LedgerEvent = "storage_written"
	EventScorerGranted       LedgerEvent = "scorer_granted"
	EventScorerRevoked       LedgerEvent = "scorer_revoked"
	EventExternalScoreSet    LedgerEvent = "external_score_set"
	EventModuleRegistered    LedgerEvent = "module_registered"
	EventModuleActivated     LedgerEvent = "module_activated"
	EventModuleDeactivated   LedgerEvent = "module_deactivated"
	EventMintingPaused       LedgerEvent = "minting_paused"
	EventMintingResumed      LedgerEvent = "minting_resumed"
	EventWhitelistOnlySet    LedgerEvent = "whitelist_only_set"
	EventWhitelistAdded      LedgerEvent = "whitelist_added"
	EventWhitelistRemoved    LedgerEvent = "whitelist_removed"
)

var eventCategories = map[LedgerEvent]EventCategory{
	EventIdentityCreated:     CategoryEconomic,
	EventModuleActivated:     CategoryEconomic,
	EventNameUpdated:         CategoryRegistry,
	EventBioUpdated:          CategoryRegistry,
	EventConfigUpdated:       CategoryRegistry,
	EventIdentityTransferred: CategoryRegistry,
	EventMessageSent:         CategoryRegistry,
	EventStorageWritten:      CategoryRegistry,
	EventScorerGranted:       CategoryRegistry,
	EventScorerRevoked:       CategoryRegistry,
	EventExternalScoreSet:    CategoryRegistry,
	EventAdminMint:           CategoryAdmin,
	EventModuleRegistered:    CategoryAdmin,
	EventModuleDeactivated:   CategoryRegistry,
	EventMintingPaused:       CategoryAdmin,
	EventMintingResumed:      CategoryAdmin,
	EventWhitelistOnlySet:    CategoryAdmin,
	EventWhitelistAdded:      CategoryAdmin,
	EventWhitelistRemoved:    CategoryAdmin,
}

// Category returns the routing category for this event. Unknown events
// default to CategoryRegistry.
func (e LedgerEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryRegistry
}

// Topic returns the Kafka topic the category publishes to.
func (c EventCategory) Topic() string {
	return "sigil.events." + string(c)
}

// Store persists events. Implementations: memory (tests, single-process)
// and postgres (transactional outbox feeding Kafka).
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]Event, error)
}
