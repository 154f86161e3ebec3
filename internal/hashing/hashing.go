// Package hashing computes and validates BLAKE3-256 content ids, the
// sole content hash used anywhere in ronet (see DESIGN.md Open Question
// decisions — no SHA-256 content path exists).
package hashing

import (
	"encoding/hex"
	"regexp"

	"lukechampine.com/blake3"
)

const (
	// Prefix is prepended to the lowercase hex digest to form a ContentId.
	Prefix = "b3:"
	// DigestSize is the BLAKE3-256 digest length in bytes.
	DigestSize = 32
)

var cidPattern = regexp.MustCompile(`^b3:[0-9a-f]{64}$`)

// Sum returns the canonical "b3:<64-hex>" content id of data.
func Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:])
}

// Valid reports whether s matches the canonical ContentId form: lowercase
// "b3:" prefix followed by exactly 64 hex digits.
func Valid(s string) bool {
	return cidPattern.MatchString(s)
}

// KeyedMAC computes a keyed BLAKE3 MAC over data using key (must be 32
// bytes), used by the capability token MAC and any other authenticated
// hash in the system.
func KeyedMAC(key [32]byte, data []byte) [32]byte {
	h := blake3.New(32, key[:])
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveKey derives a 32-byte subkey from a context string and master key
// material, using BLAKE3's native key-derivation mode.
func DeriveKey(context string, keyMaterial []byte) [32]byte {
	return blake3.DeriveKey(context, keyMaterial)
}
