package audit

import (
	"sync"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// ErrTamper is returned by Append when a record does not correctly chain
// onto the stream's current head.
var ErrTamper = rerr.New(rerr.KindAudit, "Tamper", "record does not chain onto stream head", nil)

// ChainState is the current head of a stream: its seq and self_hash.
type ChainState struct {
	Head string
	Seq  uint64
}

// Head is an exported checkpoint of a stream's current tip, suitable for
// admin/diagnostic export.
type Head struct {
	Stream string
	Seq    uint64
	Head   string
}

// RamSink is an in-memory, per-stream append-only audit sink. It has no
// durability beyond process lifetime.
type RamSink struct {
	mu      sync.RWMutex
	streams map[string][]Record
}

// NewRamSink constructs an empty in-memory sink.
func NewRamSink() *RamSink {
	return &RamSink{streams: make(map[string][]Record)}
}

// State returns the current chain head for a stream, or the zero
// ChainState if the stream has no records.
func (s *RamSink) State(stream string) ChainState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.streams[stream]
	if len(records) == 0 {
		return ChainState{}
	}
	last := records[len(records)-1]
	return ChainState{Head: last.SelfHash, Seq: last.Seq}
}

// RecordsFor returns a copy of every record appended to stream, in order.
func (s *RamSink) RecordsFor(stream string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.streams[stream]
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// Append enforces the append-only linkage rule: for the stream's current
// head L, rec.Prev must equal L.SelfHash and rec.Seq must equal L.Seq+1
// (or, for the first record in a stream, rec.Seq must be 0 and rec.Prev
// may be anything the caller used as its genesis marker). Returns the
// accepted record's self_hash.
func (s *RamSink) Append(rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.streams[rec.Stream]
	if len(records) > 0 {
		last := records[len(records)-1]
		if rec.Prev != last.SelfHash || rec.Seq != last.Seq+1 {
			return "", ErrTamper
		}
	} else if rec.Seq != 0 {
		return "", ErrTamper
	}
	s.streams[rec.Stream] = append(records, rec)
	return rec.SelfHash, nil
}

// Heads exports a checkpoint snapshot of every non-empty stream.
func (s *RamSink) Heads() []Head {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Head, 0, len(s.streams))
	for stream, records := range s.streams {
		if len(records) == 0 {
			continue
		}
		last := records[len(records)-1]
		out = append(out, Head{Stream: stream, Seq: last.Seq, Head: last.SelfHash})
	}
	return out
}
