package supervisor

import (
	"testing"
	"time"
)

func TestNextBackoffStartsAtBase(t *testing.T) {
	d := NextBackoff(0)
	if d < BaseBackoff || d > BaseBackoff*3 {
		t.Fatalf("expected first backoff within [base, base*3], got %v", d)
	}
}

func TestNextBackoffNeverExceedsCap(t *testing.T) {
	prev := BaseBackoff
	for i := 0; i < 50; i++ {
		prev = NextBackoff(prev)
		if prev > MaxBackoff {
			t.Fatalf("backoff exceeded cap: %v", prev)
		}
		if prev < BaseBackoff {
			t.Fatalf("backoff fell below base: %v", prev)
		}
	}
}

func TestNextBackoffConvergesNearCap(t *testing.T) {
	prev := MaxBackoff
	for i := 0; i < 10; i++ {
		prev = NextBackoff(prev)
	}
	if prev > MaxBackoff {
		t.Fatalf("backoff exceeded cap once saturated: %v", prev)
	}
}
