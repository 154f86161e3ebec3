package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/overlaymesh/ronet/internal/capability"
)

// fileKeyring resolves capability MAC keys by kid alone (tenant scoping
// is enforced by the token's tenant caveat, not by key selection). Keys
// are generated on first use and persisted so a long-lived node and a
// ronetctl invocation minting tokens against it agree on key material.
type fileKeyring struct {
	keys map[string]capability.MacKey
}

type keyringFile struct {
	Keys map[string]string `json:"keys"` // kid -> base64 32 bytes
}

func loadOrCreateKeyring(path string) (*fileKeyring, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		kr := &fileKeyring{keys: map[string]capability.MacKey{}}
		key, gerr := randomMacKey()
		if gerr != nil {
			return nil, gerr
		}
		kr.keys["node-1"] = key
		if werr := kr.persist(path); werr != nil {
			return nil, werr
		}
		return kr, nil
	}
	if err != nil {
		return nil, err
	}

	var kf keyringFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, err
	}
	kr := &fileKeyring{keys: map[string]capability.MacKey{}}
	for kid, enc := range kf.Keys {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil || len(b) != 32 {
			continue
		}
		var key capability.MacKey
		copy(key[:], b)
		kr.keys[kid] = key
	}
	return kr, nil
}

func (kr *fileKeyring) persist(path string) error {
	kf := keyringFile{Keys: map[string]string{}}
	for kid, key := range kr.keys {
		kf.Keys[kid] = base64.StdEncoding.EncodeToString(key[:])
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// KeyFor implements capability.MacKeyProvider.
func (kr *fileKeyring) KeyFor(kid, _ string) (capability.MacKey, bool) {
	key, ok := kr.keys[kid]
	return key, ok
}

func randomMacKey() (capability.MacKey, error) {
	var key capability.MacKey
	_, err := rand.Read(key[:])
	return key, err
}
