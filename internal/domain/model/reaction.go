package model

// ReactionEdge is a single (message, reactor, emoji) tuple. Uniqueness of
// (MessageID, ReactorIdentity, Emoji) is enforced by the Store
// [INVARIANT: REACTION_EDGE_UNIQUE].
type ReactionEdge struct {
	MessageID       string
	ReactorIdentity string
	Emoji           string
	CreatedAt       int64
}

// ReactionSummary is derived: per (message, emoji) the count, reactor set,
// first/last timestamps, and whether the local viewer reacted.
type ReactionSummary struct {
	MessageID        string
	Emoji            string
	Count            int
	Reactors         []string
	FirstAt          int64
	LastAt           int64
	ViewerReacted    bool
}
