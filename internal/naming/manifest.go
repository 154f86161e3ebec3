package naming

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Kind classifies a bundle's payload.
type Kind string

const (
	KindBlob      Kind = "Blob"
	KindText      Kind = "Text"
	KindDirectory Kind = "Directory"
)

// PriceModel enumerates payment pricing strategies advertised by a manifest.
type PriceModel string

const (
	PriceFlat    PriceModel = "flat"
	PricePerByte PriceModel = "per_byte"
)

// Payment carries informational payment hints only (see DESIGN.md Open
// Question decisions — no settlement logic exists in this core).
type Payment struct {
	Required   bool       `toml:"required"`
	Currency   string     `toml:"currency,omitempty"`
	PriceModel PriceModel `toml:"price_model,omitempty"`
	Price      uint64     `toml:"price,omitempty"`
	Wallet     string     `toml:"wallet,omitempty"`
}

// Manifest is the immutable record stored as Manifest.toml inside a bundle
// directory. SchemaVersion 2 is required for payment fields.
type Manifest struct {
	SchemaVersion int        `toml:"schema_version"`
	Tld           string     `toml:"tld"`
	Address       string     `toml:"address"`
	ContentHash   string     `toml:"content_hash"`
	Kind          Kind       `toml:"kind"`
	Mime          string     `toml:"mime"`
	Size          int64      `toml:"size"`
	CreatedAt     time.Time  `toml:"created_at"`
	OwnerAddr     string     `toml:"owner_addr,omitempty"`
	OriginPubkey  string     `toml:"origin_pubkey,omitempty"`
	License       string     `toml:"license,omitempty"`
	Tags          []string   `toml:"tags,omitempty"`
	Parents       []string   `toml:"parents,omitempty"`
	Signatures    map[string]string `toml:"signatures,omitempty"`
	Payment       *Payment   `toml:"payment,omitempty"`
}

// Validate checks the invariants a well-formed manifest must satisfy
// before it is written to disk.
func (m *Manifest) Validate() error {
	if m.SchemaVersion != 1 && m.SchemaVersion != 2 {
		return fmt.Errorf("naming: unsupported schema_version %d", m.SchemaVersion)
	}
	if m.Address == "" {
		return fmt.Errorf("naming: manifest missing address")
	}
	if m.ContentHash == "" {
		return fmt.Errorf("naming: manifest missing content_hash")
	}
	switch m.Kind {
	case KindBlob, KindText, KindDirectory:
	default:
		return fmt.Errorf("naming: manifest unknown kind %q", m.Kind)
	}
	if m.Payment != nil && m.SchemaVersion < 2 {
		return fmt.Errorf("naming: payment hints require schema_version 2")
	}
	return nil
}

// EncodeTOML renders the manifest as TOML bytes.
func (m *Manifest) EncodeTOML() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return toml.Marshal(m)
}

// DecodeManifestTOML parses Manifest.toml bytes.
func DecodeManifestTOML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("naming: decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
