// Package kms implements versioned Ed25519 key management: create,
// single-writer rotate-with-Busy-on-contention, sign, verify (against any
// retained version), and self-attestation.
package kms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// Alg identifies a signing algorithm. Only Ed25519 is implemented; the
// type exists so a future PQ algorithm slots in without changing KeyId's
// shape.
type Alg string

const AlgEd25519 Alg = "ed25519"

// KeyId is a versioned key identifier: tenant/purpose/alg/uuid#vN. The
// version suffix records the version a signature was minted at; the
// keystore looks keys up by uuid alone and retains every
// version so past signatures keep verifying after a rotation.
type KeyId struct {
	Tenant  string
	Purpose string
	Alg     Alg
	UUID    uuid.UUID
	Version uint32
}

func (k KeyId) String() string {
	return fmt.Sprintf("%s/%s/%s/%s#v%d", k.Tenant, k.Purpose, k.Alg, k.UUID, k.Version)
}

// Bump returns a copy of k with Version incremented.
func (k KeyId) Bump() KeyId {
	k.Version++
	return k
}

// ParseKeyID parses the String() format back into a KeyId.
func ParseKeyID(s string) (KeyId, error) {
	left, vpart, ok := strings.Cut(s, "#v")
	if !ok {
		return KeyId{}, rerr.New(rerr.KindKms, "Malformed", "missing version suffix", nil)
	}
	version, err := strconv.ParseUint(vpart, 10, 32)
	if err != nil {
		return KeyId{}, rerr.New(rerr.KindKms, "Malformed", "bad version", err)
	}
	parts := strings.Split(left, "/")
	if len(parts) != 4 {
		return KeyId{}, rerr.New(rerr.KindKms, "Malformed", "expected tenant/purpose/alg/uuid", nil)
	}
	id, err := uuid.Parse(parts[3])
	if err != nil {
		return KeyId{}, rerr.New(rerr.KindKms, "Malformed", "bad uuid", err)
	}
	return KeyId{Tenant: parts[0], Purpose: parts[1], Alg: Alg(parts[2]), UUID: id, Version: uint32(version)}, nil
}

// Meta describes the current state of a logical key.
type Meta struct {
	Alg            Alg
	CurrentVersion uint32
	Versions       []uint32
	CreatedUnixMs  int64
}
