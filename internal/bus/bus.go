// Package bus implements the in-process message bus that decouples channel
// adapters from the agent runtime. Two independent bounded FIFO queues:
// inbound (adapter → agent) and outbound (agent → channel manager).
package bus

import "context"

// DefaultQueueSize is the capacity of each queue when none is configured.
const DefaultQueueSize = 256

// MessageBus carries inbound and outbound messages between channels and the agent.
// Publishing blocks when the queue is full (backpressure); consuming blocks
// until a message is available or the context is cancelled.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a message bus with the default queue capacity.
func New() *MessageBus {
	return NewWithSize(DefaultQueueSize)
}

// NewWithSize creates a message bus with the given per-queue capacity.
func NewWithSize(size int) *MessageBus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound enqueues a message received from a channel.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound dequeues the next inbound message.
// Returns ok=false when ctx is cancelled before a message arrives.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message for delivery to a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// ConsumeOutbound dequeues the next outbound message.
// Returns ok=false when ctx is cancelled before a message arrives.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// InboundLen reports the number of queued inbound messages.
func (b *MessageBus) InboundLen() int { return len(b.inbound) }

// OutboundLen reports the number of queued outbound messages.
func (b *MessageBus) OutboundLen() int { return len(b.outbound) }
