// Package bus implements the in-process topic-based publish/subscribe core.
// It allows agents and managers to communicate without direct dependencies.
// The bus holds no cross-process state and has no persistence or retry
// semantics: a message delivered to zero subscribers is lost.
package bus

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

// defaultQueueSize bounds each subscription's delivery queue. A publish only
// blocks when a subscriber has this many undelivered messages.
const defaultQueueSize = 256

// Handler is a function that handles a message delivered on a topic.
type Handler func(Message)

// delivery pairs a message with an optional completion callback used by
// blocking publishes.
type delivery struct {
	msg  Message
	done func()
}

// subscription owns a bounded queue drained by a single goroutine, so that
// messages published to the same topic reach each handler in publish order.
type subscription struct {
	id      string
	topic   string
	handler Handler
	ch      chan delivery
	stop    sync.Once
}

// close shuts down the subscription's delivery goroutine. Safe to call more
// than once.
func (s *subscription) close() {
	s.stop.Do(func() { close(s.ch) })
}

// Bus is a topic-keyed publish/subscribe bus. Handlers run asynchronously on
// their own goroutines; a failing handler never affects the publisher or
// delivery to other subscribers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]*subscription // topic -> subscriptions
	nextID    atomic.Uint64
	queueSize int
	logger    *logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger attaches a logger used for handler panic reports.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithQueueSize overrides the per-subscription delivery queue capacity.
// Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n >= 1 {
			b.queueSize = n
		}
	}
}

// New creates a new empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string][]*subscription),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic and returns a subscription ID
// that can be used to unsubscribe. Handlers for the same topic are fanned
// out in subscription order.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	sub := &subscription{
		id:      fmt.Sprintf("sub-%d", b.nextID.Add(1)),
		topic:   topic,
		handler: handler,
		ch:      make(chan delivery, b.queueSize),
	}
	go b.drain(sub)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], sub)
	return sub.id
}

// Unsubscribe removes a subscription from a topic. Returns true if the
// subscription was found and removed; removing an unknown subscription is a
// no-op, not an error.
func (b *Bus) Unsubscribe(topic, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			sub.close()
			return true
		}
	}
	return false
}

// Publish delivers the message to every handler currently subscribed to its
// topic and returns without waiting for any handler to run. Publishing to a
// topic with no subscribers is a silent no-op.
func (b *Bus) Publish(msg Message) {
	b.dispatch(msg, nil)
}

// PublishWait delivers the message like Publish but blocks until every
// handler has finished, success or failure. Failures remain isolated
// per-handler.
func (b *Bus) PublishWait(msg Message) {
	var wg sync.WaitGroup
	b.dispatch(msg, &wg)
	wg.Wait()
}

// dispatch snapshots the subscriber list under the read lock before
// iterating, so handlers may subscribe or unsubscribe concurrently without
// corrupting an in-progress delivery.
func (b *Bus) dispatch(msg Message, wg *sync.WaitGroup) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[msg.Topic()]))
	copy(subs, b.subs[msg.Topic()])
	b.mu.RUnlock()

	for _, sub := range subs {
		var done func()
		if wg != nil {
			wg.Add(1)
			done = wg.Done
		}
		sub.enqueue(delivery{msg: msg, done: done})
	}
}

// enqueue hands a delivery to the subscription's queue. The subscription may
// be closed by a concurrent Unsubscribe; a send on the closed queue is
// treated as delivery to an already-departed subscriber.
func (s *subscription) enqueue(d delivery) {
	defer func() {
		if recover() != nil && d.done != nil {
			d.done()
		}
	}()
	s.ch <- d
}

// drain runs handler invocations for one subscription in arrival order.
func (b *Bus) drain(sub *subscription) {
	for d := range sub.ch {
		b.invoke(sub, d)
	}
}

// invoke calls the handler and recovers from panics. Panics are logged with
// stack traces so one misbehaving handler cannot affect delivery to others.
func (b *Bus) invoke(sub *subscription, d delivery) {
	if d.done != nil {
		defer d.done()
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				"topic", sub.topic,
				"message_id", d.msg.MessageID(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	sub.handler(d.msg)
}

// Topics returns the topics that currently have at least one subscriber,
// sorted for stable output. No ordering guarantee is made relative to
// concurrent publishes.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// SubscriberCount returns the number of handlers subscribed to a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// ClearTopic removes every subscription from a topic.
func (b *Bus) ClearTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[topic] {
		sub.close()
	}
	delete(b.subs, topic)
}

// Clear removes all subscriptions from all topics.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subs = make(map[string][]*subscription)
}

// SubscriptionCount returns the total number of active subscriptions across
// all topics.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subs {
		count += len(subs)
	}
	return count
}
