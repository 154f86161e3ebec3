package supervisor

import (
	"math/rand"
	"time"
)

const (
	// BaseBackoff is the floor for restart delays.
	BaseBackoff = 200 * time.Millisecond
	// MaxBackoff is the ceiling for restart delays.
	MaxBackoff = 5 * time.Second
)

// NextBackoff computes a decorrelated-jitter delay: a value drawn uniformly
// from [BaseBackoff, min(MaxBackoff, prev*3)], per the AWS decorrelated
// jitter algorithm. Passing a zero or negative prev starts the sequence at
// BaseBackoff.
func NextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		prev = BaseBackoff
	}
	upper := prev * 3
	if upper > MaxBackoff {
		upper = MaxBackoff
	}
	if upper <= BaseBackoff {
		return BaseBackoff
	}
	span := int64(upper - BaseBackoff)
	return BaseBackoff + time.Duration(rand.Int63n(span+1))
}
