// Package event defines the typed notifications that flow across the
// internal EventBus described in SPEC_FULL.md §12.1 — the concrete answer
// to the Design Notes' "Promise/callback event buses... typed channel"
// guidance. Each type here is a distinct Watermill topic; FailoverEngine,
// HealthMonitor, SyncEngine, and ReactionEngine are each the sole producer
// of their topic, and MessageBus is one consumer among several.
package event

// Topic names the internal EventBus channel a given event travels on.
type Topic string

const (
	TopicAlert             Topic = "core.alert"
	TopicFailoverCompleted Topic = "core.failover_completed"
	TopicSyncCompleted     Topic = "core.sync_completed"
	TopicStatusUpdate      Topic = "core.status_update"
	TopicReactionEvent     Topic = "core.reaction_event"
	TopicMessageReceived   Topic = "core.message_received"
)

// AlertSeverity classifies an Alert emitted by HealthMonitor.
type AlertSeverity int8

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

// Alert is emitted when a HealthMonitor threshold is breached (spec §4.6).
// HealthMonitor is its only producer: inbound protocol errors, such as a
// failed decrypt or an unknown frame type, are logged and raise no Alert.
type Alert struct {
	Type         string
	Severity     AlertSeverity
	ConnectionID string
	Message      string
	OccurredAt   int64
}

// FailoverCompleted reports the outcome of one FailoverEngine run (§4.7).
type FailoverCompleted struct {
	OldEndpointID     string
	NewEndpointID     string
	ElapsedMillis     int64
	MessagesPreserved int
	MessagesLost      int
}

// SyncCompleted reports §4.11's SyncStats for one SyncEngine run.
type SyncCompleted struct {
	SessionID           string
	TotalMessagesSynced int
	ConflictsResolved   int
	DurationMillis      int64
}

// StatusUpdate announces a Message status transition to any subscriber
// (used both for local fan-out and to drive MessageBus's `status(id)`
// observers).
type StatusUpdate struct {
	MessageID string
	SessionID string
	Status    string
	At        int64
}

// ReactionOp discriminates a reaction toggle's effect.
type ReactionOp string

const (
	ReactionAdded   ReactionOp = "add"
	ReactionRemoved ReactionOp = "remove"
)

// ReactionEvent announces a ReactionEngine toggle outcome (§4.10).
type ReactionEvent struct {
	MessageID string
	SessionID string
	Reactor   string
	Emoji     string
	Op        ReactionOp
	At        int64
}

// MessageReceived carries one decrypted inbound message to subscribers,
// in the causal order the session actor's reorder buffer establishes
// (spec §9's subscription-delivery note). Plaintext never touches the
// Store; it exists only on this in-process notification.
type MessageReceived struct {
	MessageID string
	SessionID string
	Sender    string
	Plaintext string
	CreatedAt int64
}
