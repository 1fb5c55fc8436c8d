package service

import (
	"context"
	"strconv"

	"sigil/internal/identity/models"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
	"sigil/pkg/requestcontext"
)

// SendMessage appends a message from one identity. A zero recipient is a
// broadcast; a zero channel means no channel. Broadcasts are indexed by
// neither recipient nor channel. The sender's messages-sent counter
// increments whatever the addressing.
func (s *Service) SendMessage(ctx context.Context, fromID, toID id.IdentityID, channel, msgType uint32, payload []byte) (*models.Message, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.SendMessage", fromID)
	defer span.End()

	var sent *models.Message
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if toID != models.BroadcastRecipient {
			if _, err := s.identities.FindByID(txCtx, toID); err != nil {
				return dErrors.New(dErrors.CodeNotFound, "recipient identity not found")
			}
		}
		msg := models.Message{
			From:      fromID,
			To:        toID,
			Channel:   channel,
			Type:      msgType,
			Payload:   payload,
			Timestamp: requestcontext.Now(txCtx),
		}
		if err := msg.Validate(); err != nil {
			return err
		}
		if _, err := s.identities.Execute(txCtx, fromID,
			func(i *models.Identity) error {
				return requireOwner(i, account)
			},
			func(i *models.Identity) {
				i.Counters.MessagesSent++
			},
		); err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		msg.Height = height
		if err := s.messages.Append(txCtx, msg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append message")
		}
		s.emit(txCtx, audit.EventMessageSent, height, fromID, strconv.FormatUint(uint64(channel), 10), 0)
		sent = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	s.invalidateRender(ctx, fromID)
	return sent, nil
}

// ListChannelMessages returns a channel's messages in ledger order.
// Channel zero is not a channel, so there is nothing to list for it.
func (s *Service) ListChannelMessages(ctx context.Context, channel uint32) ([]models.Message, error) {
	if channel == models.DirectChannel {
		return nil, dErrors.New(dErrors.CodeBadRequest, "channel zero is not indexed")
	}
	msgs, err := s.messages.ListByChannel(ctx, channel)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list channel messages")
	}
	return msgs, nil
}

// ListInboxMessages returns the messages addressed to one identity in
// ledger order. Broadcasts are excluded: they target no inbox.
func (s *Service) ListInboxMessages(ctx context.Context, identityID id.IdentityID) ([]models.Message, error) {
	if identityID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity id is required")
	}
	msgs, err := s.messages.ListByRecipient(ctx, identityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list inbox messages")
	}
	return msgs, nil
}

// WriteStorage writes or overwrites one of the identity's key-value
// slots and increments its storage-writes counter.
func (s *Service) WriteStorage(ctx context.Context, identityID id.IdentityID, key string, value []byte) (*models.StorageSlot, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateStorageWrite(key, value); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "identity.WriteStorage", identityID)
	defer span.End()

	var written *models.StorageSlot
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.identities.Execute(txCtx, identityID,
			func(i *models.Identity) error {
				return requireOwner(i, account)
			},
			func(i *models.Identity) {
				i.Counters.StorageWrites++
			},
		); err != nil {
			return wrapIdentityErr(err)
		}
		height, err := s.height.Advance(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance ledger height")
		}
		slot := models.StorageSlot{
			Identity: identityID,
			Key:      key,
			Value:    value,
			Height:   height,
		}
		if err := s.storage.Put(txCtx, slot); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write storage slot")
		}
		s.emit(txCtx, audit.EventStorageWritten, height, identityID, key, 0)
		written = &slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StorageWrites.Inc()
	}
	s.invalidateRender(ctx, identityID)
	return written, nil
}

// ReadStorage returns one storage slot.
func (s *Service) ReadStorage(ctx context.Context, identityID id.IdentityID, key string) (*models.StorageSlot, error) {
	slot, err := s.storage.Find(ctx, identityID, key)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "storage slot not found")
	}
	return slot, nil
}
