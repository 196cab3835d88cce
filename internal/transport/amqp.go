package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wamqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/solconnect/messaging-core/internal/domain/wire"
)

// AMQPQueuePrefix is mirrored from the teacher's per-node unique queue
// naming so fan-out delivery still reaches every Core instance bound to
// the same exchange.
const AMQPQueuePrefix = "solconnect.core.frames"

// AMQP is a second pluggable Transport backend, carrying Frames over a
// durable AMQP exchange instead of a direct relay socket — useful when the
// relay itself is a message broker rather than a long-lived TCP endpoint.
type AMQP struct {
	logger watermill.LoggerAdapter

	mu         sync.Mutex
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	messages   <-chan *message.Message
	state      State
	events     chan StateChange
}

var _ Transport = (*AMQP)(nil)

// NewAMQP constructs a disconnected AMQP transport using logger for the
// underlying watermill components.
func NewAMQP(logger watermill.LoggerAdapter) *AMQP {
	return &AMQP{
		logger: logger,
		state:  StateDisconnected,
		events: make(chan StateChange, 16),
	}
}

func (t *AMQP) setState(s State, err error) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	select {
	case t.events <- StateChange{State: s, At: time.Now(), Err: err}:
	default:
	}
}

// Connect treats endpointURL as an AMQP URI, publishes and subscribes on
// the AMQPQueuePrefix topic, and binds a queue named AMQPQueuePrefix plus a
// random per-connection suffix.
func (t *AMQP) Connect(ctx context.Context, endpointURL string) error {
	t.setState(StateConnecting, nil)

	queueName := AMQPQueuePrefix + "." + watermill.NewShortUUID()
	config := wamqp.NewDurablePubSubConfig(endpointURL, func(topic string) string {
		return queueName
	})

	pub, err := wamqp.NewPublisher(config, t.logger)
	if err != nil {
		t.setState(StateDisconnected, err)
		return &Error{Kind: Refused, Endpoint: endpointURL, Err: err}
	}
	sub, err := wamqp.NewSubscriber(config, t.logger)
	if err != nil {
		t.setState(StateDisconnected, err)
		return &Error{Kind: Refused, Endpoint: endpointURL, Err: err}
	}

	messages, err := sub.Subscribe(ctx, AMQPQueuePrefix)
	if err != nil {
		t.setState(StateDisconnected, err)
		return &Error{Kind: Refused, Endpoint: endpointURL, Err: err}
	}

	t.mu.Lock()
	t.publisher = pub
	t.subscriber = sub
	t.topic = AMQPQueuePrefix
	t.messages = messages
	t.mu.Unlock()

	t.setState(StateConnected, nil)
	return nil
}

func (t *AMQP) Send(_ context.Context, f wire.Frame) error {
	t.mu.Lock()
	pub, topic := t.publisher, t.topic
	t.mu.Unlock()
	if pub == nil {
		return &Error{Kind: Closed}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := pub.Publish(topic, msg); err != nil {
		return &Error{Kind: Timeout, Err: err}
	}
	return nil
}

func (t *AMQP) Recv(ctx context.Context) (wire.Frame, error) {
	t.mu.Lock()
	ch := t.messages
	t.mu.Unlock()
	if ch == nil {
		return wire.Frame{}, &Error{Kind: Closed}
	}
	select {
	case msg, ok := <-ch:
		if !ok {
			t.setState(StateDisconnected, nil)
			return wire.Frame{}, &Error{Kind: Closed}
		}
		var f wire.Frame
		if err := json.Unmarshal(msg.Payload, &f); err != nil {
			msg.Nack()
			return wire.Frame{}, err
		}
		msg.Ack()
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, &Error{Kind: Timeout, Err: ctx.Err()}
	}
}

func (t *AMQP) Close() error {
	t.mu.Lock()
	pub, sub := t.publisher, t.subscriber
	t.publisher, t.subscriber, t.messages = nil, nil, nil
	t.mu.Unlock()

	t.setState(StateClosing, nil)
	var firstErr error
	if pub != nil {
		if err := pub.Close(); err != nil {
			firstErr = err
		}
	}
	if sub != nil {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.setState(StateDisconnected, nil)
	return firstErr
}

func (t *AMQP) Events() <-chan StateChange { return t.events }

func (t *AMQP) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
