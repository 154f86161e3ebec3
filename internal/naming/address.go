// Package naming implements address parsing/rendering and the bundle
// Manifest format. An Address is either a raw content id or an
// IDNA-normalized name with an optional semver.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/overlaymesh/ronet/internal/hashing"
)

// SemVer is a bare major.minor.patch triple (no pre-release/build).
type SemVer struct {
	Major, Minor, Patch uint64
}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseSemVer parses a bare "major.minor.patch" string.
func ParseSemVer(s string) (SemVer, error) {
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return SemVer{}, fmt.Errorf("naming: invalid semver %q", s)
	}
	major, _ := strconv.ParseUint(m[1], 10, 64)
	minor, _ := strconv.ParseUint(m[2], 10, 64)
	patch, _ := strconv.ParseUint(m[3], 10, 64)
	return SemVer{Major: major, Minor: minor, Patch: patch}, nil
}

// idnaProfile mirrors the UTS-46 "non-transitional" mapping used by
// browsers; it lowercases and validates label structure without
// transitional mappings for deprecated symbols.
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.ValidateLabels(true),
)

// Fqdn is an IDNA/UTS-46 normalized ASCII name with no trailing dot.
type Fqdn string

// NormalizeFqdn validates and normalizes a user-supplied name.
func NormalizeFqdn(s string) (Fqdn, error) {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", fmt.Errorf("naming: empty name")
	}
	ascii, err := idnaProfile.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("naming: idna normalize %q: %w", s, err)
	}
	return Fqdn(strings.ToLower(ascii)), nil
}

// Address is the sum type {Content(ContentId)} | {Name(Fqdn, *SemVer)}.
type Address struct {
	contentID string  // set iff kind == addrContent
	name      Fqdn    // set iff kind == addrName
	version   *SemVer // optional, only meaningful for addrName
	kind      addrKind
}

type addrKind int

const (
	addrContent addrKind = iota
	addrName
)

// NewContentAddress builds an Address from an already-validated ContentId.
func NewContentAddress(cid string) (Address, error) {
	if !hashing.Valid(cid) {
		return Address{}, fmt.Errorf("naming: invalid content id %q", cid)
	}
	return Address{kind: addrContent, contentID: cid}, nil
}

// NewNameAddress builds a name address, optionally pinned to a version.
func NewNameAddress(name Fqdn, version *SemVer) Address {
	return Address{kind: addrName, name: name, version: version}
}

// IsContent reports whether this address is a raw content id.
func (a Address) IsContent() bool { return a.kind == addrContent }

// ContentID returns the content id and true iff IsContent().
func (a Address) ContentID() (string, bool) {
	if a.kind != addrContent {
		return "", false
	}
	return a.contentID, true
}

// Name returns the name and optional version iff !IsContent().
func (a Address) Name() (Fqdn, *SemVer, bool) {
	if a.kind != addrName {
		return "", nil, false
	}
	return a.name, a.version, true
}

// String renders the canonical wire form: "b3:<hex>" or "name[@major.minor.patch]".
func (a Address) String() string {
	switch a.kind {
	case addrContent:
		return a.contentID
	case addrName:
		if a.version != nil {
			return string(a.name) + "@" + a.version.String()
		}
		return string(a.name)
	default:
		return ""
	}
}

// ParseAddress parses either wire form. Content ids must already be
// canonical; names are IDNA-normalized as part of parsing.
func ParseAddress(s string) (Address, error) {
	if strings.HasPrefix(s, hashing.Prefix) {
		return NewContentAddress(s)
	}
	name, verStr, hasVer := strings.Cut(s, "@")
	fq, err := NormalizeFqdn(name)
	if err != nil {
		return Address{}, err
	}
	if !hasVer {
		return NewNameAddress(fq, nil), nil
	}
	v, err := ParseSemVer(verStr)
	if err != nil {
		return Address{}, err
	}
	return NewNameAddress(fq, &v), nil
}
