package zkpay

import "sync"

// defaultSubscriberBuffer bounds the per-subscriber event queue. A subscriber
// that falls this far behind is dropped rather than allowed to stall
// publishers.
const defaultSubscriberBuffer = 64

// EventBus fans lifecycle events out to the currently connected observers.
//
// Delivery is at-most-once per subscriber and follows publish order. Late
// joiners do not receive history: the bus is for live progress observation,
// not audit logging. Publish never blocks and never fails; a subscriber whose
// queue is full is silently removed.
type EventBus struct {
	mu     sync.Mutex
	subs   map[uint64]chan LifecycleEvent
	nextID uint64
	buffer int
}

// NewEventBus creates an event bus with the default subscriber buffer.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:   make(map[uint64]chan LifecycleEvent),
		buffer: defaultSubscriberBuffer,
	}
}

// NewEventBusWithBuffer creates an event bus with a custom per-subscriber
// queue size. Buffer sizes below 1 are raised to 1.
func NewEventBusWithBuffer(buffer int) *EventBus {
	if buffer < 1 {
		buffer = 1
	}
	return &EventBus{
		subs:   make(map[uint64]chan LifecycleEvent),
		buffer: buffer,
	}
}

// Subscription is a live view of events published after Subscribe was called.
type Subscription struct {
	id  uint64
	bus *EventBus
	ch  chan LifecycleEvent
}

// Events returns the subscription's receive channel. The channel is closed
// when the subscription is closed or the subscriber is dropped for falling
// behind.
func (s *Subscription) Events() <-chan LifecycleEvent {
	return s.ch
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new observer. Only events published after this call
// are delivered.
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan LifecycleEvent, b.buffer)
	b.subs[id] = ch
	return &Subscription{id: id, bus: b, ch: ch}
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans an event out to every active subscriber, preserving publish
// order per subscriber. Publishers are serialized; a full subscriber queue
// drops that subscriber instead of blocking the publish.
func (b *EventBus) Publish(event LifecycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
