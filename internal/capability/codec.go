package capability

import (
	"crypto/subtle"
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"

	"github.com/overlaymesh/ronet/internal/hashing"
)

var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// envelope is the wire shape: the token plus its MAC, both CBOR-encoded
// with canonical (sorted-key, deterministic) encoding so the same Token
// always produces the same bytes to MAC and to transmit.
type envelope struct {
	Token Token  `cbor:"token"`
	Mac   []byte `cbor:"mac"`
}

func canonicalTokenBytes(t Token) ([]byte, error) {
	return canonicalEncMode.Marshal(t)
}

// SignAndEncode MACs token with the key for (token.Kid, token.Tenant) and
// returns the base64url (unpadded) wire string.
func SignAndEncode(token Token, keys MacKeyProvider) (string, error) {
	key, ok := keys.KeyFor(token.Kid, token.Tenant)
	if !ok {
		return "", ErrUnknownKid
	}
	tokBytes, err := canonicalTokenBytes(token)
	if err != nil {
		return "", malformed(err)
	}
	mac := hashing.KeyedMAC(key, tokBytes)
	env := envelope{Token: token, Mac: mac[:]}
	raw, err := canonicalEncMode.Marshal(env)
	if err != nil {
		return "", malformed(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeEnvelope base64url-decodes and CBOR-decodes s, enforcing
// maxTokenBytes on the raw wire size before any parsing happens.
func decodeEnvelope(s string, maxTokenBytes int) (envelope, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return envelope{}, malformed(err)
	}
	if maxTokenBytes > 0 && len(raw) > maxTokenBytes {
		return envelope{}, ErrBounds
	}
	var env envelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return envelope{}, malformed(err)
	}
	return env, nil
}

func macMatches(key MacKey, token Token, mac []byte) (bool, error) {
	tokBytes, err := canonicalTokenBytes(token)
	if err != nil {
		return false, malformed(err)
	}
	want := hashing.KeyedMAC(key, tokBytes)
	return subtle.ConstantTimeCompare(want[:], mac) == 1, nil
}
