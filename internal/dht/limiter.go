package dht

import "context"

// Limiter bounds the number of concurrently in-flight lookup legs across
// an entire Ctx, regardless of how many lookups are running.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter constructs a Limiter allowing up to max concurrent legs.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is cancelled. The returned
// release function must be called exactly once to free the slot; it is
// nil if acquisition failed.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
