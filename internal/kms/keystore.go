package kms

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overlaymesh/ronet/internal/hashing"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// ErrUnknownKey is returned when a KeyId names a logical key the store
// has never issued.
var ErrUnknownKey = rerr.New(rerr.KindKms, "UnknownKey", "no such key", nil)

// ErrUnknownVersion is returned when a signature names a retired and
// purged version, or a version that was never issued.
var ErrUnknownVersion = rerr.New(rerr.KindKms, "UnknownVersion", "no such key version", nil)

type versionedKey struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

type entry struct {
	mu       sync.RWMutex // guards reads/writes of the fields below
	rotating sync.Mutex   // single-writer rotation lock; TryLock => Busy on contention
	tenant   string
	purpose  string
	alg      Alg
	current  uint32
	versions map[uint32]versionedKey
	created  int64
}

// Keystore is an in-memory, versioned Ed25519 key manager. One process
// owns one Keystore; persistence/sealing at rest is out of scope here,
// treating key material as memory-resident for the core.
type Keystore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// New constructs an empty Keystore.
func New() *Keystore {
	return &Keystore{entries: make(map[uuid.UUID]*entry)}
}

// CreateEd25519 mints a new logical key at version 1.
func (k *Keystore) CreateEd25519(tenant, purpose string) (KeyId, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyId{}, rerr.New(rerr.KindKms, "GenerateFailed", "generate ed25519 key", err)
	}
	id := uuid.New()
	e := &entry{
		tenant:   tenant,
		purpose:  purpose,
		alg:      AlgEd25519,
		current:  1,
		versions: map[uint32]versionedKey{1: {public: pub, private: priv}},
		created:  time.Now().UnixMilli(),
	}
	k.mu.Lock()
	k.entries[id] = e
	k.mu.Unlock()
	return KeyId{Tenant: tenant, Purpose: purpose, Alg: AlgEd25519, UUID: id, Version: 1}, nil
}

func (k *Keystore) lookup(id KeyId) (*entry, error) {
	k.mu.RLock()
	e, ok := k.entries[id.UUID]
	k.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}
	return e, nil
}

// Rotate generates a new key version for the logical key id names and
// makes it current. Only one rotation may be in flight per key at a
// time; a concurrent Rotate call returns rerr.ErrBusy immediately rather
// than blocking.
func (k *Keystore) Rotate(id KeyId) (KeyId, error) {
	e, err := k.lookup(id)
	if err != nil {
		return KeyId{}, err
	}
	if !e.rotating.TryLock() {
		return KeyId{}, rerr.ErrBusy
	}
	defer e.rotating.Unlock()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyId{}, rerr.New(rerr.KindKms, "GenerateFailed", "generate ed25519 key", err)
	}

	e.mu.Lock()
	next := e.current + 1
	e.versions[next] = versionedKey{public: pub, private: priv}
	e.current = next
	e.mu.Unlock()

	return KeyId{Tenant: e.tenant, Purpose: e.purpose, Alg: e.alg, UUID: id.UUID, Version: next}, nil
}

// Sign signs msg with the current version of id's key. The signature is
// prefixed with the signing version (4 bytes, big-endian) so Verify can
// find the matching public key even across rotations.
func (k *Keystore) Sign(id KeyId, msg []byte) ([]byte, error) {
	e, err := k.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	vk, ok := e.versions[e.current]
	version := e.current
	e.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownVersion
	}
	sig := ed25519.Sign(vk.private, msg)
	out := make([]byte, 4+len(sig))
	binary.BigEndian.PutUint32(out[:4], version)
	copy(out[4:], sig)
	return out, nil
}

// Verify checks sig against msg using whichever retained version the
// signature names, so signatures made before a rotation keep verifying.
func (k *Keystore) Verify(id KeyId, msg, sig []byte) (bool, error) {
	if len(sig) < 4 {
		return false, rerr.New(rerr.KindKms, "Malformed", "signature too short", nil)
	}
	e, err := k.lookup(id)
	if err != nil {
		return false, err
	}
	version := binary.BigEndian.Uint32(sig[:4])
	e.mu.RLock()
	vk, ok := e.versions[version]
	e.mu.RUnlock()
	if !ok {
		return false, ErrUnknownVersion
	}
	return ed25519.Verify(vk.public, msg, sig[4:]), nil
}

// VerifyRequest is one unit of work for VerifyBatch.
type VerifyRequest struct {
	Kid KeyId
	Msg []byte
	Sig []byte
}

// VerifyBatch verifies every request, grouping lookups by key uuid to
// avoid repeated map lookups, and returns results in input order.
func (k *Keystore) VerifyBatch(reqs []VerifyRequest) ([]bool, error) {
	out := make([]bool, len(reqs))
	cache := make(map[uuid.UUID]*entry, len(reqs))
	for i, r := range reqs {
		e, ok := cache[r.Kid.UUID]
		if !ok {
			var err error
			e, err = k.lookup(r.Kid)
			if err != nil {
				return nil, err
			}
			cache[r.Kid.UUID] = e
		}
		ok2, err := k.verifyWithEntry(e, r.Msg, r.Sig)
		if err != nil {
			return nil, err
		}
		out[i] = ok2
	}
	return out, nil
}

func (k *Keystore) verifyWithEntry(e *entry, msg, sig []byte) (bool, error) {
	if len(sig) < 4 {
		return false, rerr.New(rerr.KindKms, "Malformed", "signature too short", nil)
	}
	version := binary.BigEndian.Uint32(sig[:4])
	e.mu.RLock()
	vk, ok := e.versions[version]
	e.mu.RUnlock()
	if !ok {
		return false, ErrUnknownVersion
	}
	return ed25519.Verify(vk.public, msg, sig[4:]), nil
}

// Meta returns the current metadata snapshot for id's logical key.
func (k *Keystore) Meta(id KeyId) (Meta, error) {
	e, err := k.lookup(id)
	if err != nil {
		return Meta{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	versions := make([]uint32, 0, len(e.versions))
	for v := range e.versions {
		versions = append(versions, v)
	}
	return Meta{Alg: e.alg, CurrentVersion: e.current, Versions: versions, CreatedUnixMs: e.created}, nil
}

// Fingerprint returns a short, stable BLAKE3-derived fingerprint of a
// key's current public key, safe to log or expose over the admin surface.
func (k *Keystore) Fingerprint(id KeyId) (string, error) {
	e, err := k.lookup(id)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	vk, ok := e.versions[e.current]
	e.mu.RUnlock()
	if !ok {
		return "", ErrUnknownVersion
	}
	return hashing.Sum(vk.public), nil
}
