// Package broker defines the Broker Adapter contract (spec §4.1): the
// narrow interface between the runtime and a topic-routed, QoS-1 pub/sub
// broker. The broker itself is an external collaborator (spec §1) — this
// package only declares the contract plus an in-memory reference
// implementation used by tests and local development.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/solacelabs/sam-core/common/a2a"
)

// TransportError is returned when a publish fails after the broker's
// reconnect/backoff budget is exhausted (spec §4.1, §7).
type TransportError struct {
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker: transport error publishing to %q: %v", e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrNotConnected is wrapped into a TransportError when the adapter has no
// live connection and the retry budget has been exhausted.
var ErrNotConnected = errors.New("broker: not connected")

// Message is one inbound delivery: the decoded envelope plus enough of the
// broker metadata to settle it and to know where to reply.
type Message struct {
	Topic      string
	Envelope   *a2a.Envelope
	Properties a2a.UserProperties
	handle     MessageHandle
}

// Handle returns the opaque settlement handle for this message.
func (m *Message) Handle() MessageHandle { return m.handle }

// MessageHandle is settled exactly once via Adapter.Acknowledge or
// Adapter.NegativeAcknowledge (spec §4.1).
type MessageHandle interface {
	// Opaque; broker implementations type-assert their own concrete type.
	isMessageHandle()
}

// Handler processes one inbound message. It must settle the message exactly
// once (directly, or by returning and letting the caller settle based on
// the returned error) and must be idempotent on (sub_task_id,
// adk_function_call_id) pairs per spec §4.1.
type Handler func(ctx context.Context, msg *Message) error

// Adapter is the Broker Adapter contract (spec §4.1).
type Adapter interface {
	// Subscribe registers handler for topics matching pattern. Wildcards
	// follow the broker's convention (single-level "*", multi-level ">").
	Subscribe(ctx context.Context, pattern string, handler Handler) error

	// Publish is a fire-and-forget QoS-1 publish. Returns *TransportError
	// if the broker connection is down after reconnects are exhausted.
	Publish(ctx context.Context, topic string, envelope *a2a.Envelope, props a2a.UserProperties) error

	// Acknowledge settles an inbound message as successfully processed.
	Acknowledge(ctx context.Context, handle MessageHandle) error

	// NegativeAcknowledge settles an inbound message as not processed,
	// letting the broker redeliver it (spec §4.1, §5 backpressure).
	NegativeAcknowledge(ctx context.Context, handle MessageHandle) error

	// Close releases the underlying connection.
	Close() error
}
