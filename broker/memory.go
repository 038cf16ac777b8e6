package broker

import (
	"context"
	"sync"

	"github.com/solacelabs/sam-core/common/a2a"
)

// memoryHandle is the settlement handle for the in-memory adapter; settling
// it is a no-op beyond bookkeeping since there is no real redelivery queue.
type memoryHandle struct{ id uint64 }

func (memoryHandle) isMessageHandle() {}

type subscription struct {
	pattern string
	handler Handler
}

// Memory is an in-process Adapter used by tests and local development
// (spec §1 treats the broker as an external collaborator; this is the
// reference double, not a production broker). Delivery is synchronous and
// fan-out to every matching subscription, mirroring the SQLTaskService
// channel-fanout pattern the teacher uses for its own subscriber notify.
type Memory struct {
	mu            sync.Mutex
	subs          []subscription
	nextHandleID  uint64
	connected     bool
	publishCount  int
	droppedAcks   int
}

// NewMemory creates a connected in-memory broker.
func NewMemory() *Memory {
	return &Memory{connected: true}
}

func (m *Memory) Subscribe(_ context.Context, pattern string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, subscription{pattern: pattern, handler: handler})
	return nil
}

func (m *Memory) Publish(ctx context.Context, topic string, envelope *a2a.Envelope, props a2a.UserProperties) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return &TransportError{Topic: topic, Err: ErrNotConnected}
	}
	m.publishCount++
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.nextHandleID++
	handle := memoryHandle{id: m.nextHandleID}
	m.mu.Unlock()

	for _, s := range subs {
		if !MatchTopic(s.pattern, topic) {
			continue
		}
		msg := &Message{Topic: topic, Envelope: envelope, Properties: props, handle: handle}
		// Deliver synchronously; a handler error is only counted in
		// droppedAcks and the message is not redelivered.
		if err := s.handler(ctx, msg); err != nil {
			m.mu.Lock()
			m.droppedAcks++
			m.mu.Unlock()
		}
	}
	return nil
}

func (m *Memory) Acknowledge(context.Context, MessageHandle) error {
	return nil
}

func (m *Memory) NegativeAcknowledge(context.Context, MessageHandle) error {
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// SetConnected toggles the simulated connection state, for TransportError
// exercise in tests.
func (m *Memory) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}
