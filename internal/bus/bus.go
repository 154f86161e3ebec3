// Package bus implements a bounded broadcast channel. Each
// subscriber gets an independent buffered channel; on overflow the
// oldest unread message for that subscriber is dropped and a Lagged
// signal is delivered instead, following a producer/drain fan-out shape
// generalized from a single-channel broadcast to per-subscriber buffers.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/overlaymesh/ronet/internal/obs"
)

// Lagged is delivered to a subscriber instead of a skipped message when
// its queue overflowed.
type Lagged struct {
	Topic   string
	Skipped uint64
}

// Envelope wraps a published value together with the topic it was
// published on. Subscribers that want every topic subscribe to "".
type Envelope struct {
	Topic   string
	Value   any
	Lag     *Lagged // non-nil iff this envelope represents a lag signal
}

// Bus is a bounded, multi-subscriber broadcaster.
type Bus struct {
	mu          sync.RWMutex
	capacity    int
	subs        map[uint64]*subscriber
	nextID      uint64
	metrics     *obs.Metrics
	published   atomic.Uint64
}

type subscriber struct {
	ch     chan Envelope
	topic  string // "" subscribes to every topic
	lagged atomic.Uint64
}

const (
	minCapacity = 2
	maxCapacity = 65536
)

// New constructs a Bus with capacity rounded up to the next power of two
// and clamped to [2, 65536].
func New(capacity int, metrics *obs.Metrics) *Bus {
	return &Bus{capacity: normalizeCapacity(capacity), subs: make(map[uint64]*subscriber), metrics: metrics}
}

func normalizeCapacity(n int) int {
	if n < minCapacity {
		n = minCapacity
	}
	if n > maxCapacity {
		return maxCapacity
	}
	p := 1
	for p < n {
		p <<= 1
	}
	if p > maxCapacity {
		p = maxCapacity
	}
	return p
}

// Capacity returns the normalized per-subscriber channel capacity.
func (b *Bus) Capacity() int { return b.capacity }

// Subscription is a handle returned by Subscribe; callers read from C
// and must call Close when done.
type Subscription struct {
	C      <-chan Envelope
	id     uint64
	bus    *Bus
}

// Close unregisters the subscription and releases its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Subscribe returns a new independent stream starting at the point of
// subscription. topic == "" receives every published message.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Envelope, b.capacity), topic: topic}
	b.subs[id] = sub
	return &Subscription{C: sub.ch, id: id, bus: b}
}

// TryPublish is the non-blocking publish path. It never blocks: a full
// subscriber channel causes drop-oldest-and-signal-lag for that
// subscriber only; other subscribers are unaffected.
func (b *Bus) TryPublish(topic string, value any) {
	b.publishEnvelope(Envelope{Topic: topic, Value: value})
}

// PublishMany batches several values under one lock acquisition,
// reducing wakeups relative to calling TryPublish in a loop, with
// identical per-message semantics.
func (b *Bus) PublishMany(topic string, values []any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, v := range values {
		b.deliverLocked(Envelope{Topic: topic, Value: v})
	}
}

func (b *Bus) publishEnvelope(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.deliverLocked(env)
}

// snapshotSubs copies the current subscriber list under lock so callers can
// then block on individual channels without holding the bus lock across a
// suspension point.
func (b *Bus) snapshotSubs() []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Publish is the blocking counterpart to TryPublish: it awaits capacity on
// every matching subscriber's channel instead of dropping, returning early
// if ctx is cancelled. No lock is held while waiting for a subscriber to
// drain.
func (b *Bus) Publish(ctx context.Context, topic string, value any) error {
	b.published.Add(1)
	if b.metrics != nil {
		b.metrics.BusPublished.WithLabelValues(topic).Inc()
	}
	for _, sub := range b.snapshotSubs() {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- Envelope{Topic: topic, Value: value}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.metrics != nil {
		b.metrics.BusDepth.WithLabelValues(topic).Set(float64(b.depthHeuristic()))
	}
	return nil
}

// deliverLocked must be called with b.mu held for reading.
func (b *Bus) deliverLocked(env Envelope) {
	b.published.Add(1)
	if b.metrics != nil {
		b.metrics.BusPublished.WithLabelValues(env.Topic).Inc()
	}
	for _, sub := range b.subs {
		if sub.topic != "" && sub.topic != env.Topic {
			continue
		}
		out := env
		select {
		case sub.ch <- out:
		default:
			// Drop the oldest queued message to make room; the delivered
			// envelope carries a Lagged signal so the subscriber knows to
			// reconcile from a snapshot before trusting this value.
			select {
			case <-sub.ch:
				sub.lagged.Add(1)
				if b.metrics != nil {
					b.metrics.BusLagged.WithLabelValues(env.Topic).Inc()
				}
			default:
			}
			out.Lag = &Lagged{Topic: env.Topic, Skipped: sub.lagged.Load()}
			select {
			case sub.ch <- out:
			default:
				// Lost the race against another goroutine draining; the
				// subscriber will observe the gap on its next successful send.
				sub.lagged.Add(1)
			}
		}
	}
	if b.metrics != nil {
		b.metrics.BusDepth.WithLabelValues(env.Topic).Set(float64(b.depthHeuristic()))
	}
}

// depthHeuristic reports a rough queue-depth signal: the longest backlog
// currently queued on any subscriber's channel.
func (b *Bus) depthHeuristic() int {
	max := 0
	for _, sub := range b.subs {
		if n := len(sub.ch); n > max {
			max = n
		}
	}
	return max
}

// Published returns the total number of values accepted by Publish/
// TryPublish/PublishMany since construction.
func (b *Bus) Published() uint64 { return b.published.Load() }
