// Package dht implements the distributed provider index: a TTL'd
// provider store and an α/β hedged iterative lookup FSM bounded by a
// deadline, hop budget, and leg-concurrency semaphore.
package dht

import (
	"strings"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"
)

// Node identifies a provider peer: a stable id plus its dial address.
type Node struct {
	ID   string
	Addr multiaddr.Multiaddr
}

type providerRecord struct {
	node      Node
	expiresAt time.Time
}

func (r providerRecord) expired(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

// Store is an in-memory, TTL'd provider index keyed by content id.
type Store struct {
	mu         sync.RWMutex
	byCid      map[string][]providerRecord
	defaultTTL time.Duration
}

// NewStore constructs a Store whose records expire after defaultTTL
// unless Add is given an explicit ttl.
func NewStore(defaultTTL time.Duration) *Store {
	return &Store{byCid: make(map[string][]providerRecord), defaultTTL: defaultTTL}
}

// DefaultTTL returns the store's fallback record lifetime.
func (s *Store) DefaultTTL() time.Duration { return s.defaultTTL }

// Add inserts or refreshes a provider record for cid, de-duplicated by
// node id: a second Add for the same (cid, node.ID) replaces the
// existing record rather than appending.
func (s *Store) Add(cid string, node Node, ttl time.Duration) {
	cid = normalize(cid)
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	rec := providerRecord{node: node, expiresAt: time.Now().Add(ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.byCid[cid]
	for i, r := range records {
		if r.node.ID == node.ID {
			records[i] = rec
			s.byCid[cid] = records
			return
		}
	}
	s.byCid[cid] = append(records, rec)
}

// GetLive returns the currently-live providers for cid, without mutating
// the store (expired records are filtered, not removed).
func (s *Store) GetLive(cid string) []Node {
	cid = normalize(cid)
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byCid[cid]
	out := make([]Node, 0, len(records))
	for _, r := range records {
		if !r.expired(now) {
			out = append(out, r.node)
		}
	}
	return out
}

// PurgeExpired sweeps every cid bucket for expired records, dropping
// now-empty cid buckets entirely. It never blocks readers for longer
// than the time needed to hold the write lock for the sweep itself, and
// running it twice in a row with no intervening Add is a no-op the
// second time.
func (s *Store) PurgeExpired() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for cid, records := range s.byCid {
		kept := records[:0]
		for _, r := range records {
			if r.expired(now) {
				purged++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.byCid, cid)
		} else {
			s.byCid[cid] = kept
		}
	}
	return purged
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
