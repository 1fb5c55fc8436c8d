package models

import (
	"time"

	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

// Broadcast and direct-message sentinels for message addressing.
const (
	// BroadcastRecipient means the message targets no single identity and
	// is indexed by neither recipient nor channel-recipient.
	BroadcastRecipient id.IdentityID = 0
	// DirectChannel means the message belongs to no channel.
	DirectChannel uint32 = 0
)

// Message is an append-only ledger entry. Messages are never edited or
// deleted.
type Message struct {
	From      id.IdentityID `json:"from"`
	To        id.IdentityID `json:"to"`
	Channel   uint32        `json:"channel"`
	Type      uint32        `json:"type"`
	Payload   []byte        `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
	Height    id.Height     `json:"height"`
}

// Validate checks message bounds before any state mutation.
func (m *Message) Validate() error {
	if m.From.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "message sender is required")
	}
	if len(m.Payload) > MessagePayloadMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "message payload must be at most %d bytes", MessagePayloadMaxLen)
	}
	return nil
}

// IsBroadcast reports whether the message targets every identity.
func (m *Message) IsBroadcast() bool { return m.To == BroadcastRecipient }

// StorageSlot is an arbitrary per-identity key-value entry with no TTL.
type StorageSlot struct {
	Identity id.IdentityID `json:"identity"`
	Key      string        `json:"key"`
	Value    []byte        `json:"value"`
	Height   id.Height     `json:"height"`
}

// ValidateStorageWrite checks slot bounds before any state mutation.
func ValidateStorageWrite(key string, value []byte) error {
	if key == "" {
		return dErrors.New(dErrors.CodeValidation, "storage key is required")
	}
	if len(key) > StorageKeyMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "storage key must be at most %d bytes", StorageKeyMaxLen)
	}
	if len(value) > StorageValueMaxLen {
		return dErrors.Newf(dErrors.CodeValidation, "storage value must be at most %d bytes", StorageValueMaxLen)
	}
	return nil
}

// ExternalScore is a keyed signed integer written through the scorer
// channel. It is stored and queried independently and never folded into
// the composite reputation formula.
type ExternalScore struct {
	Identity id.IdentityID `json:"identity"`
	Key      string        `json:"key"`
	Value    int64         `json:"value"`
}
