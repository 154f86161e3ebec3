package dht

import (
	"context"
	"sync"
	"time"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// ErrTimeout is returned when a lookup exhausts its hop budget or global
// deadline without a successful hop.
var ErrTimeout = rerr.New(rerr.KindDht, "Timeout", "lookup exhausted hop budget or deadline", nil)

// Request parameters a single lookup. Alpha must be > 0 and HopBudget
// must be > 0; a Beta outside (0, Alpha] is clamped to Alpha.
type Request struct {
	Cid          string
	Alpha        int
	Beta         int
	HopBudget    int
	Deadline     time.Duration
	HedgeStagger time.Duration
	MinLegBudget time.Duration
}

// Result is the outcome of a successful lookup.
type Result struct {
	Providers []Node
	HopsTried int
	Elapsed   time.Duration
}

// PeerSource selects up to n candidate peers for one hop's fanout. Peer
// selection/routing is treated as a black box; callers wire in whatever
// strategy fits (static list, a real routing table, etc).
type PeerSource func(ctx context.Context, n int) []Node

// Ctx runs lookups against a local provider Store, bounding total leg
// concurrency across every in-flight lookup via a shared Limiter.
type Ctx struct {
	store   *Store
	limiter *Limiter
	peers   PeerSource
}

// NewCtx builds a lookup Ctx. peers selects candidate nodes per hop; if
// nil, a single synthetic local peer is used per hop (sufficient to
// exercise hedging/budgets against the local Store in the absence of a
// real routing layer).
func NewCtx(store *Store, maxConcurrentLegs int, peers PeerSource) *Ctx {
	if peers == nil {
		peers = localPeerSource
	}
	return &Ctx{store: store, limiter: NewLimiter(maxConcurrentLegs), peers: peers}
}

func localPeerSource(_ context.Context, n int) []Node {
	out := make([]Node, n)
	for i := range out {
		out[i] = Node{ID: "local"}
	}
	return out
}

// Run executes the α/β hedged iterative lookup FSM described in the
// overlay's DHT component: each hop selects up to Alpha peers, races up
// to Beta staggered hedged legs against them, and takes the first leg to
// succeed. Hops continue until a hop succeeds, the hop budget is
// exhausted, or the global deadline passes.
func (c *Ctx) Run(ctx context.Context, req Request) (Result, error) {
	if req.Alpha <= 0 {
		return Result{}, rerr.New(rerr.KindDht, "BadRequest", "alpha must be > 0", nil)
	}
	if req.HopBudget <= 0 {
		return Result{}, rerr.New(rerr.KindDht, "BadRequest", "hop budget must be > 0", nil)
	}
	beta := req.Beta
	if beta <= 0 || beta > req.Alpha {
		beta = req.Alpha
	}

	started := time.Now()
	deadline := started.Add(req.Deadline)

	hopsTried := 0
	for hopsTried < req.HopBudget && time.Now().Before(deadline) {
		hopsTried++
		remaining := time.Until(deadline)
		legBudget := remaining
		if legBudget < req.MinLegBudget {
			legBudget = req.MinLegBudget
		}

		peers := c.peers(ctx, req.Alpha)
		legCount := beta
		if legCount > len(peers) {
			legCount = len(peers)
		}
		if legCount == 0 {
			continue
		}

		providers, ok := c.raceHedged(ctx, peers[:legCount], req.Cid, req.HedgeStagger, legBudget)
		if ok {
			return Result{Providers: providers, HopsTried: hopsTried, Elapsed: time.Since(started)}, nil
		}
	}
	return Result{}, ErrTimeout
}

// raceHedged launches up to len(peers) legs, staggered by hedgeStagger,
// each bounded by legBudget. The first leg to return a non-empty result
// wins; remaining legs are cancelled. No lock is held across any
// suspension point here — only the Limiter's channel-based semaphore is
// touched, which is itself safe to block on.
func (c *Ctx) raceHedged(ctx context.Context, peers []Node, cid string, hedgeStagger, legBudget time.Duration) ([]Node, bool) {
	legCtx, cancel := context.WithTimeout(ctx, legBudget)
	defer cancel()

	type legResult struct {
		providers []Node
		ok        bool
	}
	results := make(chan legResult, len(peers))
	var wg sync.WaitGroup

	for i, peer := range peers {
		wg.Add(1)
		go func(i int, peer Node) {
			defer wg.Done()
			if i > 0 && hedgeStagger > 0 {
				select {
				case <-time.After(time.Duration(i) * hedgeStagger):
				case <-legCtx.Done():
					results <- legResult{}
					return
				}
			}
			release, err := c.limiter.Acquire(legCtx)
			if err != nil {
				results <- legResult{}
				return
			}
			defer release()

			providers := c.store.GetLive(cid)
			results <- legResult{providers: providers, ok: len(providers) > 0}
			_ = peer // peer selection is a black box; the MVP queries the local store directly
		}(i, peer)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.ok {
			cancel()
			return r.providers, true
		}
	}
	return nil, false
}
