package supervisor

import (
	"testing"
	"time"
)

func TestAllowsRestartsBelowThreshold(t *testing.T) {
	policy := NewCrashPolicy(3, 60*time.Second)
	now := time.Now()
	crashes := []time.Time{now.Add(-10 * time.Second), now.Add(-20 * time.Second)}
	if !policy.ShouldRestart(crashes, now) {
		t.Fatalf("expected restart to be allowed")
	}
}

func TestDeniesRestartsAboveThreshold(t *testing.T) {
	policy := NewCrashPolicy(3, 60*time.Second)
	now := time.Now()
	crashes := []time.Time{
		now.Add(-5 * time.Second),
		now.Add(-10 * time.Second),
		now.Add(-20 * time.Second),
		now.Add(-30 * time.Second),
	}
	if policy.ShouldRestart(crashes, now) {
		t.Fatalf("expected restart to be denied once over budget")
	}
}

func TestIgnoresCrashesOutsideWindow(t *testing.T) {
	policy := NewCrashPolicy(2, 30*time.Second)
	now := time.Now()
	crashes := []time.Time{
		now.Add(-300 * time.Second),
		now.Add(-5 * time.Second),
		now.Add(-10 * time.Second),
	}
	if !policy.ShouldRestart(crashes, now) {
		t.Fatalf("expected the stale crash to be excluded from the window count")
	}
}
