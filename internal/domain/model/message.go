package model

import "fmt"

// Message is an atomic, immutable exchange unit. Only Status and Attempts
// may change after creation [INVARIANT: message is immutable save for
// Status/Attempts].
type Message struct {
	ID          string
	SessionID   string
	Sender      string
	Recipient   string
	ContentType ContentType
	Ciphertext  []byte
	CreatedAt   int64 // wall-clock, informational only
	VectorClock VectorClock
	Status      Status
	Attempts    int
}

// NewMessageID formats a globally unique message id as
// msg_{device}_{timestamp}_{rand}.
func NewMessageID(device string, timestampMillis int64, rand string) string {
	return fmt.Sprintf("msg_%s_%d_%s", device, timestampMillis, rand)
}

// NewMessage creates a freshly originated message in StatusQueued. Advancing
// it past Queued is the responsibility of OutboundQueue/Transport/Store, not
// the data model itself.
func NewMessage(id, sessionID, sender, recipient string, contentType ContentType, ciphertext []byte, createdAt int64, vc VectorClock) *Message {
	return &Message{
		ID:          id,
		SessionID:   sessionID,
		Sender:      sender,
		Recipient:   recipient,
		ContentType: contentType,
		Ciphertext:  ciphertext,
		CreatedAt:   createdAt,
		VectorClock: vc.Clone(),
		Status:      StatusQueued,
		Attempts:    0,
	}
}

// Advance attempts a status transition, enforcing the monotone status
// invariant. It returns false (no-op) when the transition would regress.
func (m *Message) Advance(next Status) bool {
	if !m.Status.CanTransition(next) {
		return false
	}
	m.Status = next
	return true
}
