package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/solconnect/messaging-core/internal/domain/wire"
)

// WebSocket is the reference Transport implementation, dialing a relay over
// gorilla/websocket the same way the teacher's ws handler serves inbound
// connections — here used client-side, from this Core outbound to a relay.
type WebSocket struct {
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	events chan StateChange
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket constructs a disconnected WebSocket transport.
func NewWebSocket() *WebSocket {
	return &WebSocket{
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
		events: make(chan StateChange, 16),
	}
}

func (t *WebSocket) setState(s State, err error) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	change := StateChange{State: s, At: time.Now(), Err: err}
	select {
	case t.events <- change:
	default:
	}
}

func (t *WebSocket) Connect(ctx context.Context, endpointURL string) error {
	t.setState(StateConnecting, nil)
	conn, _, err := t.dialer.DialContext(ctx, endpointURL, nil)
	if err != nil {
		t.setState(StateDisconnected, err)
		return &Error{Kind: Refused, Endpoint: endpointURL, Err: err}
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setState(StateConnected, nil)
	return nil
}

func (t *WebSocket) Send(_ context.Context, f wire.Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &Error{Kind: Closed, Err: websocket.ErrCloseSent}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &Error{Kind: Timeout, Err: err}
	}
	return nil
}

func (t *WebSocket) Recv(_ context.Context) (wire.Frame, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return wire.Frame{}, &Error{Kind: Closed, Err: websocket.ErrCloseSent}
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.setState(StateDisconnected, err)
		return wire.Frame{}, &Error{Kind: Timeout, Err: err}
	}
	var f wire.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return wire.Frame{}, err
	}
	return f, nil
}

func (t *WebSocket) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	t.setState(StateClosing, nil)
	if conn == nil {
		return nil
	}
	err := conn.Close()
	t.setState(StateDisconnected, nil)
	return err
}

func (t *WebSocket) Events() <-chan StateChange { return t.events }

func (t *WebSocket) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
