package dht

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddDedupesByNode(t *testing.T) {
	s := NewStore(time.Minute)
	s.Add("b3:abc", Node{ID: "peer-1"}, 0)
	s.Add("b3:abc", Node{ID: "peer-1"}, 0)
	s.Add("b3:abc", Node{ID: "peer-2"}, 0)

	live := s.GetLive("b3:abc")
	if len(live) != 2 {
		t.Fatalf("expected 2 deduped providers, got %d: %+v", len(live), live)
	}
}

func TestGetLiveExcludesExpired(t *testing.T) {
	s := NewStore(time.Minute)
	s.Add("b3:abc", Node{ID: "peer-1"}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	live := s.GetLive("b3:abc")
	if len(live) != 0 {
		t.Fatalf("expected expired record to be excluded, got %+v", live)
	}
}

func TestPurgeExpiredIsIdempotentAndDropsEmptyCids(t *testing.T) {
	s := NewStore(time.Minute)
	s.Add("b3:abc", Node{ID: "peer-1"}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	purged := s.PurgeExpired()
	if purged != 1 {
		t.Fatalf("expected 1 purged record, got %d", purged)
	}
	if again := s.PurgeExpired(); again != 0 {
		t.Fatalf("expected idempotent second purge, got %d", again)
	}
	if len(s.GetLive("b3:abc")) != 0 {
		t.Fatalf("expected no providers after purge")
	}
}

func TestLookupSucceedsWhenProvidersExist(t *testing.T) {
	store := NewStore(time.Minute)
	store.Add("b3:abc", Node{ID: "peer-1"}, 0)

	ctx := NewCtx(store, 8, nil)
	res, err := ctx.Run(context.Background(), Request{
		Cid: "b3:abc", Alpha: 3, Beta: 2, HopBudget: 4,
		Deadline: time.Second, HedgeStagger: time.Millisecond, MinLegBudget: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Providers) != 1 || res.Providers[0].ID != "peer-1" {
		t.Fatalf("unexpected providers: %+v", res.Providers)
	}
	if res.HopsTried < 1 {
		t.Fatalf("expected at least one hop tried")
	}
}

func TestLookupTimesOutWithNoProviders(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := NewCtx(store, 8, nil)
	_, err := ctx.Run(context.Background(), Request{
		Cid: "b3:missing", Alpha: 2, Beta: 2, HopBudget: 2,
		Deadline: 30 * time.Millisecond, HedgeStagger: time.Millisecond, MinLegBudget: 5 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLookupRejectsZeroAlpha(t *testing.T) {
	ctx := NewCtx(NewStore(time.Minute), 4, nil)
	_, err := ctx.Run(context.Background(), Request{Cid: "b3:x", Alpha: 0, HopBudget: 1, Deadline: time.Second})
	if err == nil {
		t.Fatalf("expected error for alpha=0")
	}
}

func TestLimiterBoundsConcurrentLegs(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	rel1, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	rel2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		rel3, err := l.Acquire(ctx)
		if err == nil {
			close(acquired)
			rel3()
		}
	}()

	select {
	case <-acquired:
		t.Fatalf("third acquire should have blocked while 2 slots are held")
	case <-time.After(20 * time.Millisecond):
	}

	rel1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("third acquire did not proceed after a release")
	}
	rel2()
}
