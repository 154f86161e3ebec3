package audit

import "github.com/overlaymesh/ronet/internal/hashing"

// SelfHash computes the self_hash of r: BLAKE3-256 over CanonicalBytes
// with self_hash excluded, rendered as the usual "b3:<hex>" content id.
func SelfHash(r Record) (string, error) {
	canon, err := CanonicalBytes(r)
	if err != nil {
		return "", err
	}
	return hashing.Sum(canon), nil
}

// Seal recomputes and sets r.SelfHash in place, returning the sealed copy.
func Seal(r Record) (Record, error) {
	h, err := SelfHash(r)
	if err != nil {
		return Record{}, err
	}
	r.SelfHash = h
	return r, nil
}
