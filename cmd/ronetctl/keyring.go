package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/overlaymesh/ronet/internal/capability"
)

// keyringFile is the on-disk JSON shape a mac keyring is persisted in:
// kid -> base64(32 bytes). It must match macronode's own keyring file
// format byte-for-byte since ronetctl mints tokens against the same key
// material a running node verifies with.
type keyringFile struct {
	Keys map[string]string `json:"keys"`
}

func readKeyring(path string) (keyringFile, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return keyringFile{Keys: map[string]string{}}, nil
	}
	if err != nil {
		return keyringFile{}, err
	}
	var kf keyringFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return keyringFile{}, err
	}
	if kf.Keys == nil {
		kf.Keys = map[string]string{}
	}
	return kf, nil
}

func writeKeyring(path string, kf keyringFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func newMacKey() (capability.MacKey, error) {
	var key capability.MacKey
	_, err := rand.Read(key[:])
	return key, err
}

func decodeMacKey(enc string) (capability.MacKey, bool) {
	var key capability.MacKey
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(b) != len(key) {
		return key, false
	}
	copy(key[:], b)
	return key, true
}

func encodeMacKey(key capability.MacKey) string {
	return base64.StdEncoding.EncodeToString(key[:])
}
