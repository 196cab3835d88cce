package bus

import (
	"context"
	"errors"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
)

// Listen runs until ctx is cancelled or t.Recv returns a non-context
// error, dispatching every inbound Frame to the matching handler: chat
// frames are decrypted and routed through the session's actor (applying
// the reorder-buffer bookkeeping in actor.go), receipts and reactions
// update the Store directly, and sync frames are left for SyncEngine.Run
// to consume on its own call path.
func (b *Bus) Listen(ctx context.Context, t transportRecver) error {
	for {
		f, err := t.Recv(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := b.dispatch(ctx, f); err != nil && b.logger != nil {
			b.logger.Warn("bus: failed to handle inbound frame", "type", f.Type, "err", err)
		}
	}
}

// transportRecver is the narrow slice of transport.Transport Listen
// needs, kept as an interface so tests can feed frames without a real
// socket.
type transportRecver interface {
	Recv(ctx context.Context) (wire.Frame, error)
}

func (b *Bus) dispatch(ctx context.Context, f wire.Frame) error {
	switch f.Type {
	case wire.TypeChat:
		return b.handleChat(ctx, f)
	case wire.TypeStatusUpdate:
		return b.handleStatusUpdate(ctx, f)
	case wire.TypeReadReceiptBatch:
		return b.handleReadReceiptBatch(ctx, f)
	case wire.TypeReactionEvent:
		return b.handleReactionEvent(ctx, f)
	case wire.TypeSyncRequest, wire.TypeSyncResponse, wire.TypeAck, wire.TypePing, wire.TypePong, wire.TypeHandshake:
		// Owned by SyncEngine.Run / HealthMonitor.Run's own Recv loops, or
		// require no Core-side action.
		return nil
	default:
		return nil
	}
}

func (b *Bus) handleChat(ctx context.Context, f wire.Frame) error {
	var chat wire.Chat
	if err := wire.Decode(f, &chat); err != nil {
		return err
	}
	session, err := b.st.GetSession(ctx, chat.SessionID)
	if err != nil {
		return err
	}
	c, err := b.cipherFor(session)
	if err != nil {
		return err
	}
	plaintext, err := c.Open(chat.Ciphertext, []byte(chat.SessionID))
	if err != nil {
		if b.decryptFailureCounter != nil {
			b.decryptFailureCounter.Add(ctx, 1)
		}
		return err
	}

	msg := model.NewMessage(chat.MessageID, chat.SessionID, chat.Sender, chat.Recipient,
		model.ContentType(chat.ContentType), chat.Ciphertext, chat.CreatedAt, chat.VectorClock)
	msg.Status = model.StatusDelivered

	return b.actorFor(chat.SessionID).submitWithPlaintext(ctx, msg, true, string(plaintext))
}

func (b *Bus) handleStatusUpdate(ctx context.Context, f wire.Frame) error {
	var su wire.StatusUpdate
	if err := wire.Decode(f, &su); err != nil {
		return err
	}
	return b.st.UpdateMessageStatus(ctx, su.MessageID, model.Status(su.Status))
}

func (b *Bus) handleReadReceiptBatch(ctx context.Context, f wire.Frame) error {
	var batch wire.ReadReceiptBatch
	if err := wire.Decode(f, &batch); err != nil {
		return err
	}
	var firstErr error
	for _, id := range batch.MessageIDs {
		if err := b.st.UpdateMessageStatus(ctx, id, model.StatusRead); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) handleReactionEvent(ctx context.Context, f wire.Frame) error {
	var re wire.ReactionEvent
	if err := wire.Decode(f, &re); err != nil {
		return err
	}
	_, err := b.reactions.Toggle(ctx, re.SessionID, re.MessageID, re.Reactor, re.Emoji)
	return err
}
