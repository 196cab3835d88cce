// Package reaction implements the emoji reaction CRDT-like aggregate of
// spec §4.10: toggle/add/remove edges, derive per-emoji summaries, and
// serve a bounded recent_for view of a single reactor's recently-used
// emoji. summaryCache is an LRU over (message -> edges) so repeated
// Summaries reads for hot messages don't re-scan the Store; recentCache
// is the actual recent_for index, an LRU over (reactor -> recent uses)
// maintained write-through from Toggle, since Store has no reactor-scoped
// query to derive it from on demand.
package reaction

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mr-tron/base58"

	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/store"
)

// MaxEmojiRunes caps a reaction per spec §4.10: non-empty, at most 10 code
// points, either all within the allowed emoji block ranges or matching one
// of the emoticons in textEmoticons.
const MaxEmojiRunes = 10

// RecentCacheSize bounds the summary LRU's entry count.
const RecentCacheSize = 512

// RecentForCacheSize bounds how many distinct reactors the recent_for
// index tracks at once; eviction drops the least-recently-touched reactor.
const RecentForCacheSize = 4096

// DefaultRecentForLimit is recent_for's limit when the caller passes <= 0.
const DefaultRecentForLimit = 8

// reactorIdentityMinLen/MaxLen mirror spec §4.10's reactor validation: a
// base58 string 32-44 characters long, the same shape as the public-key
// identities elsewhere in the Core.
const (
	reactorIdentityMinLen = 32
	reactorIdentityMaxLen = 44
)

// textEmoticons is the small allowlist spec §4.10 permits alongside the
// Unicode emoji block ranges.
var textEmoticons = map[string]struct{}{
	":)": {}, ":-)": {}, ":(": {}, ":-(": {}, ":D": {}, ":-D": {},
	";)": {}, ";-)": {}, ":P": {}, ":-P": {}, ":p": {}, ":-p": {},
	"<3": {}, ":/": {}, ":-/": {}, "XD": {}, "xD": {}, ":'(": {}, ":O": {}, ":o": {},
}

// emojiBlocks lists the Unicode code-point ranges spec §4.10 calls "the
// allowed emoji code-point set": the emoticons, symbols & pictographs,
// transport, dingbats, and flag blocks, plus the variation-selector,
// zero-width-joiner, and skin-tone-modifier code points used to compose
// multi-rune emoji sequences.
var emojiBlocks = [][2]rune{
	{0x2600, 0x27BF},   // Misc Symbols, Dingbats
	{0x1F300, 0x1F5FF}, // Misc Symbols and Pictographs
	{0x1F600, 0x1F64F}, // Emoticons
	{0x1F680, 0x1F6FF}, // Transport and Map Symbols
	{0x1F900, 0x1F9FF}, // Supplemental Symbols and Pictographs
	{0x1FA70, 0x1FAFF}, // Symbols and Pictographs Extended-A
	{0x1F1E6, 0x1F1FF}, // Regional Indicator Symbols (flags)
	{0x1F3FB, 0x1F3FF}, // Emoji skin tone modifiers
	{0xFE00, 0xFE0F},   // Variation Selectors
	{0x200D, 0x200D},   // Zero Width Joiner
}

func isEmojiRune(r rune) bool {
	for _, block := range emojiBlocks {
		if r >= block[0] && r <= block[1] {
			return true
		}
	}
	return false
}

// ErrInvalidEmoji reports a reaction whose Emoji field fails validation.
type ErrInvalidEmoji struct{ Emoji string }

func (e *ErrInvalidEmoji) Error() string {
	return fmt.Sprintf("reaction: invalid emoji %q", e.Emoji)
}

// ErrInvalidReactor reports a reaction whose reactor identity fails the
// base58, length 32-44 validation of spec §4.10.
type ErrInvalidReactor struct{ Reactor string }

func (e *ErrInvalidReactor) Error() string {
	return fmt.Sprintf("reaction: invalid reactor identity %q", e.Reactor)
}

// RecentReaction is one row of recent_for(reactor, limit): an emoji the
// reactor has used, how many times, and when they last used it.
type RecentReaction struct {
	Emoji    string
	Count    int
	LastUsed int64
}

// Engine owns reaction toggling, summary derivation, and recent_for.
type Engine struct {
	st           store.Store
	bus          *eventbus.Bus
	summaryCache *lru.Cache[string, []model.ReactionEdge]
	recentCache  *lru.Cache[string, []RecentReaction]
}

// New constructs a reaction Engine.
func New(st store.Store, bus *eventbus.Bus) (*Engine, error) {
	summaryCache, err := lru.New[string, []model.ReactionEdge](RecentCacheSize)
	if err != nil {
		return nil, err
	}
	recentCache, err := lru.New[string, []RecentReaction](RecentForCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{st: st, bus: bus, summaryCache: summaryCache, recentCache: recentCache}, nil
}

func validateEmoji(emoji string) error {
	if emoji == "" || utf8.RuneCountInString(emoji) > MaxEmojiRunes {
		return &ErrInvalidEmoji{Emoji: emoji}
	}
	if _, ok := textEmoticons[emoji]; ok {
		return nil
	}
	for _, r := range emoji {
		if !isEmojiRune(r) {
			return &ErrInvalidEmoji{Emoji: emoji}
		}
	}
	return nil
}

func validateReactor(reactor string) error {
	if len(reactor) < reactorIdentityMinLen || len(reactor) > reactorIdentityMaxLen {
		return &ErrInvalidReactor{Reactor: reactor}
	}
	if _, err := base58.Decode(reactor); err != nil {
		return &ErrInvalidReactor{Reactor: reactor}
	}
	return nil
}

// Toggle adds reactor's emoji reaction to messageID if absent, or removes
// it if already present, publishing a ReactionEvent either way.
func (e *Engine) Toggle(ctx context.Context, sessionID, messageID, reactor, emoji string) (added bool, err error) {
	if err := validateReactor(reactor); err != nil {
		return false, err
	}
	if err := validateEmoji(emoji); err != nil {
		return false, err
	}

	edges, err := e.st.ListReactions(ctx, messageID)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge.ReactorIdentity == reactor && edge.Emoji == emoji {
			if err := e.st.RemoveReaction(ctx, messageID, reactor, emoji); err != nil {
				return false, err
			}
			e.summaryCache.Remove(messageID)
			e.touchRecent(reactor, emoji, false)
			e.publish(sessionID, messageID, reactor, emoji, event.ReactionRemoved)
			return false, nil
		}
	}

	if err := e.st.PutReaction(ctx, &model.ReactionEdge{
		MessageID:       messageID,
		ReactorIdentity: reactor,
		Emoji:           emoji,
		CreatedAt:       time.Now().UnixMilli(),
	}); err != nil {
		return false, err
	}
	e.summaryCache.Remove(messageID)
	e.touchRecent(reactor, emoji, true)
	e.publish(sessionID, messageID, reactor, emoji, event.ReactionAdded)
	return true, nil
}

// touchRecent updates reactor's recent_for entry for emoji: an add bumps
// the use count and the timestamp, a remove only refreshes the timestamp
// of an entry that already exists, since un-reacting isn't a new use.
// Either way the touched entry moves to the end of the list, which is kept
// in order of use, most recent last.
func (e *Engine) touchRecent(reactor, emoji string, added bool) {
	list, _ := e.recentCache.Get(reactor)
	now := time.Now().UnixMilli()
	for i := range list {
		if list[i].Emoji == emoji {
			entry := list[i]
			if added {
				entry.Count++
			}
			entry.LastUsed = now
			list = append(append(list[:i:i], list[i+1:]...), entry)
			e.recentCache.Add(reactor, list)
			return
		}
	}
	if !added {
		return
	}
	list = append(list, RecentReaction{Emoji: emoji, Count: 1, LastUsed: now})
	e.recentCache.Add(reactor, list)
}

// RecentFor implements spec §4.10's recent_for(reactor, limit=8): the
// reactor's most recently-used emoji, newest first, capped at limit.
func (e *Engine) RecentFor(reactor string, limit int) []RecentReaction {
	if limit <= 0 {
		limit = DefaultRecentForLimit
	}
	list, ok := e.recentCache.Get(reactor)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]RecentReaction, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}

func (e *Engine) publish(sessionID, messageID, reactor, emoji string, op event.ReactionOp) {
	_ = e.bus.Publish(event.TopicReactionEvent, event.ReactionEvent{
		MessageID: messageID,
		SessionID: sessionID,
		Reactor:   reactor,
		Emoji:     emoji,
		Op:        op,
		At:        time.Now().UnixMilli(),
	})
}

// Summaries aggregates messageID's reaction edges into one ReactionSummary
// per distinct emoji, consulting the summary cache first.
func (e *Engine) Summaries(ctx context.Context, messageID, viewer string) ([]model.ReactionSummary, error) {
	edges, ok := e.summaryCache.Get(messageID)
	if !ok {
		stored, err := e.st.ListReactions(ctx, messageID)
		if err != nil {
			return nil, err
		}
		edges = make([]model.ReactionEdge, len(stored))
		for i, edge := range stored {
			edges[i] = *edge
		}
		e.summaryCache.Add(messageID, edges)
	}

	byEmoji := make(map[string]*model.ReactionSummary)
	var order []string
	for _, edge := range edges {
		s, ok := byEmoji[edge.Emoji]
		if !ok {
			s = &model.ReactionSummary{MessageID: messageID, Emoji: edge.Emoji, FirstAt: edge.CreatedAt, LastAt: edge.CreatedAt}
			byEmoji[edge.Emoji] = s
			order = append(order, edge.Emoji)
		}
		s.Count++
		s.Reactors = append(s.Reactors, edge.ReactorIdentity)
		if edge.CreatedAt < s.FirstAt {
			s.FirstAt = edge.CreatedAt
		}
		if edge.CreatedAt > s.LastAt {
			s.LastAt = edge.CreatedAt
		}
		if edge.ReactorIdentity == viewer {
			s.ViewerReacted = true
		}
	}

	out := make([]model.ReactionSummary, 0, len(order))
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	return out, nil
}
