package audit

import "github.com/overlaymesh/ronet/internal/rerr"

// ErrHashMismatch means a record's stored self_hash does not match its
// recomputed canonical hash.
var ErrHashMismatch = rerr.New(rerr.KindAudit, "HashMismatch", "self_hash does not match canonical bytes", nil)

// ErrLinkMismatch means a record's prev does not equal the previous
// record's self_hash.
var ErrLinkMismatch = rerr.New(rerr.KindAudit, "LinkMismatch", "prev does not match previous self_hash", nil)

// verifyRecord recomputes r's self_hash and checks it matches what is stored.
func verifyRecord(r Record) error {
	got, err := SelfHash(r)
	if err != nil {
		return err
	}
	if got != r.SelfHash {
		return ErrHashMismatch
	}
	return nil
}

// verifyLink checks that next correctly chains onto prev.
func verifyLink(prev, next Record) error {
	if next.Prev != prev.SelfHash {
		return ErrLinkMismatch
	}
	return nil
}

// VerifyChain is the scalar reference implementation: it verifies each
// record's self_hash and, for every adjacent pair, the prev linkage.
func VerifyChain(records []Record) error {
	var last *Record
	for i := range records {
		rec := records[i]
		if err := verifyRecord(rec); err != nil {
			return err
		}
		if last != nil {
			if err := verifyLink(*last, rec); err != nil {
				return err
			}
		}
		last = &records[i]
	}
	return nil
}

// VerifyChainSoA is the SoA-style fast path: one pass verifying every
// self_hash, then a second pass checking linkage. Semantically identical
// to VerifyChain.
func VerifyChainSoA(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := verifyRecord(rec); err != nil {
			return err
		}
	}
	for i := 1; i < len(records); i++ {
		if err := verifyLink(records[i-1], records[i]); err != nil {
			return err
		}
	}
	return nil
}
