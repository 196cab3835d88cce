package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// Session is a conversation between two identities. It survives restarts
// via Store and is destroyed only by an explicit end-session call.
type Session struct {
	ID            string
	PeerIdentity  string
	SharedKey     [32]byte
	LocalDeviceID string
	CreatedAt     int64
}

// NewSessionID derives a stable, deterministic session id from the pair of
// identities plus a creation epoch, so both sides of a conversation compute
// the same id independently [INVARIANT: session_id is stable and equal on
// both sides].
func NewSessionID(identityA, identityB string, epoch int64) string {
	ids := []string{identityA, identityB}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(ids[0] + "|" + ids[1] + "|" + strconv.FormatInt(epoch, 10)))
	return "sess_" + hex.EncodeToString(sum[:16])
}

// NewSession constructs a Session for a freshly opened conversation.
func NewSession(localIdentity, peerIdentity, localDeviceID string, sharedKey [32]byte, now time.Time) *Session {
	epoch := now.Unix()
	return &Session{
		ID:            NewSessionID(localIdentity, peerIdentity, epoch),
		PeerIdentity:  peerIdentity,
		SharedKey:     sharedKey,
		LocalDeviceID: localDeviceID,
		CreatedAt:     now.UnixMilli(),
	}
}
