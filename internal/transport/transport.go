// Package transport defines the pluggable wire-level capability used to
// move Frames between this Core and a relay (spec §4.3, §4.8). A
// Transport is deliberately ignorant of message semantics: it moves
// bytes framed as wire.Frame and reports connection lifecycle, leaving
// ordering, retries, and routing to internal/outbound and internal/relay.
package transport

import (
	"context"
	"time"

	"github.com/solconnect/messaging-core/internal/domain/wire"
)

// State is the connection lifecycle a Transport reports through Events().
type State int8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// StateChange is emitted on Events() whenever State transitions.
type StateChange struct {
	State State
	At    time.Time
	Err   error
}

// Transport is the capability FailoverEngine and OutboundQueue depend on
// to actually move Frames over a connection to one relay endpoint.
// Implementations must be safe for one concurrent Send and one concurrent
// Recv loop; Close must be safe to call more than once.
type Transport interface {
	Connect(ctx context.Context, endpointURL string) error
	Send(ctx context.Context, f wire.Frame) error
	Recv(ctx context.Context) (wire.Frame, error)
	Close() error
	Events() <-chan StateChange
	State() State
}
