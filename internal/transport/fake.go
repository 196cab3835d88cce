package transport

import (
	"context"
	"sync"
	"time"

	"github.com/solconnect/messaging-core/internal/domain/wire"
)

// Fake is an in-memory Transport for tests: Send appends to Outbox, and
// Recv reads from a channel the test can feed via Inject. No real network
// or process boundary is crossed.
type Fake struct {
	mu     sync.Mutex
	state  State
	events chan StateChange
	inbox  chan wire.Frame
	Outbox []wire.Frame

	ConnectErr error
}

var _ Transport = (*Fake)(nil)

// NewFake constructs a disconnected Fake transport.
func NewFake() *Fake {
	return &Fake{
		state:  StateDisconnected,
		events: make(chan StateChange, 16),
		inbox:  make(chan wire.Frame, 64),
	}
}

func (t *Fake) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	select {
	case t.events <- StateChange{State: s, At: time.Now()}:
	default:
	}
}

func (t *Fake) Connect(_ context.Context, _ string) error {
	if t.ConnectErr != nil {
		t.setState(StateDisconnected)
		return t.ConnectErr
	}
	t.setState(StateConnected)
	return nil
}

func (t *Fake) Send(_ context.Context, f wire.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateConnected {
		return &Error{Kind: Closed}
	}
	t.Outbox = append(t.Outbox, f)
	return nil
}

// Inject makes f available to the next Recv call, simulating a frame
// arriving from the peer.
func (t *Fake) Inject(f wire.Frame) {
	t.inbox <- f
}

func (t *Fake) Recv(ctx context.Context) (wire.Frame, error) {
	select {
	case f := <-t.inbox:
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, &Error{Kind: Timeout, Err: ctx.Err()}
	}
}

func (t *Fake) Close() error {
	t.setState(StateDisconnected)
	return nil
}

func (t *Fake) Events() <-chan StateChange { return t.events }

func (t *Fake) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
