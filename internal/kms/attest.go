package kms

import (
	"encoding/binary"
	"time"
)

// Attestation is a self-signed statement of a key's current state,
// suitable for the admin status surface.
type Attestation struct {
	Kid           KeyId
	AsOfUnixMs    int64
	Fingerprint   string
	Signature     []byte // signs the canonical attestation body below
}

// Attest produces a self-signed Attestation for id's logical key: the
// current version signs a small canonical body over (kid, fingerprint,
// timestamp) so a verifier with no other channel can confirm the key is
// live and under this keystore's control.
func (k *Keystore) Attest(id KeyId) (Attestation, error) {
	fp, err := k.Fingerprint(id)
	if err != nil {
		return Attestation{}, err
	}
	e, err := k.lookup(id)
	if err != nil {
		return Attestation{}, err
	}
	e.mu.RLock()
	currentID := KeyId{Tenant: e.tenant, Purpose: e.purpose, Alg: e.alg, UUID: id.UUID, Version: e.current}
	e.mu.RUnlock()

	now := time.Now().UnixMilli()
	body := attestationBody(currentID, fp, now)
	sig, err := k.Sign(currentID, body)
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{Kid: currentID, AsOfUnixMs: now, Fingerprint: fp, Signature: sig}, nil
}

// VerifyAttestation recomputes the attestation body and checks the
// signature against the retained version it names.
func (k *Keystore) VerifyAttestation(a Attestation) (bool, error) {
	body := attestationBody(a.Kid, a.Fingerprint, a.AsOfUnixMs)
	return k.Verify(a.Kid, body, a.Signature)
}

func attestationBody(kid KeyId, fingerprint string, asOfUnixMs int64) []byte {
	out := []byte(kid.String() + "|" + fingerprint + "|")
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(asOfUnixMs))
	return append(out, ts[:]...)
}
