// Package capability implements macaroon-style bearer capability tokens:
// CBOR-encoded, keyed-BLAKE3-MAC'd, attenuable via append-only caveats,
// using fxamacker/cbor/v2 canonical encoding and internal/hashing's
// keyed BLAKE3 as the MAC primitive.
package capability

import "net"

// MacKey is the 32-byte keyed-BLAKE3 MAC key for one (kid, tenant) pair.
type MacKey [32]byte

// MacKeyProvider resolves the signing/verification key for a key id and
// tenant. A missing pair must return ok=false, surfaced as UnknownKid.
type MacKeyProvider interface {
	KeyFor(kid, tenant string) (key MacKey, ok bool)
}

// Scope is the coarse-grained access envelope a token's caveats attenuate.
type Scope struct {
	Prefix   string   `cbor:"prefix,omitempty"`
	Methods  []string `cbor:"methods,omitempty"`
	MaxBytes *uint64  `cbor:"max_bytes,omitempty"`
}

// CaveatKind tags the active field of a Caveat.
type CaveatKind string

const (
	CaveatExp             CaveatKind = "exp"
	CaveatNbf             CaveatKind = "nbf"
	CaveatAud             CaveatKind = "aud"
	CaveatMethod          CaveatKind = "method"
	CaveatPathPrefix      CaveatKind = "path_prefix"
	CaveatIpCidr          CaveatKind = "ip_cidr"
	CaveatBytesLe         CaveatKind = "bytes_le"
	CaveatTenant          CaveatKind = "tenant"
	CaveatAmnesia         CaveatKind = "amnesia"
	CaveatGovPolicyDigest CaveatKind = "gov_policy_digest"
	CaveatCustom          CaveatKind = "custom"
)

// Caveat is one attenuating condition attached to a token. Exactly the
// field(s) matching Kind are meaningful; the rest are zero. A flat struct
// (rather than a Go interface per variant) keeps the CBOR encoding
// deterministic without a custom marshaler per kind.
type Caveat struct {
	Kind    CaveatKind `cbor:"kind"`
	UInt    uint64     `cbor:"uint,omitempty"`
	Str     string     `cbor:"str,omitempty"`
	Strs    []string   `cbor:"strs,omitempty"`
	Bool    bool       `cbor:"bool,omitempty"`
}

func CaveatExpAt(unixSeconds uint64) Caveat  { return Caveat{Kind: CaveatExp, UInt: unixSeconds} }
func CaveatNbfAt(unixSeconds uint64) Caveat  { return Caveat{Kind: CaveatNbf, UInt: unixSeconds} }
func CaveatAudience(aud string) Caveat       { return Caveat{Kind: CaveatAud, Str: aud} }
func CaveatMethods(methods ...string) Caveat { return Caveat{Kind: CaveatMethod, Strs: methods} }
func CaveatPathPrefixOf(prefix string) Caveat {
	return Caveat{Kind: CaveatPathPrefix, Str: prefix}
}
func CaveatIpCidrOf(cidr string) Caveat       { return Caveat{Kind: CaveatIpCidr, Str: cidr} }
func CaveatMaxBytes(n uint64) Caveat          { return Caveat{Kind: CaveatBytesLe, UInt: n} }
func CaveatTenantOf(tenant string) Caveat     { return Caveat{Kind: CaveatTenant, Str: tenant} }
func CaveatAmnesiaIs(flag bool) Caveat        { return Caveat{Kind: CaveatAmnesia, Bool: flag} }
func CaveatGovPolicyDigestOf(d string) Caveat { return Caveat{Kind: CaveatGovPolicyDigest, Str: d} }
func CaveatCustomOf(tag string) Caveat        { return Caveat{Kind: CaveatCustom, Str: tag} }

// Token is the unsigned capability payload that gets MAC'd and encoded.
type Token struct {
	Kid     string   `cbor:"kid"`
	Tenant  string   `cbor:"tid"`
	Scope   Scope    `cbor:"scope"`
	Caveats []Caveat `cbor:"caveats"`
}

// RequestCtx is the request-side evidence caveats are evaluated against.
type RequestCtx struct {
	NowUnixS        uint64
	Method          string
	Path            string
	PeerIP          net.IP
	ObjectAddr      string
	Tenant          string
	Amnesia         bool
	PolicyDigestHex string
	Extras          map[string]any // e.g. {"len": uint64(...)} for BytesLe
}

// VerifierConfig bounds and tunes verification.
type VerifierConfig struct {
	MaxTokenBytes  int
	MaxCaveats     int
	ClockSkewSecs  int64
	SoaThreshold   int // caveat count at/above which the columnar evaluator is used
}

// DenyReason is a soft verification failure: the token parsed and its MAC
// matched, but a caveat's condition was not satisfied.
type DenyReason string

const (
	DenyBadAudience      DenyReason = "BadAudience"
	DenyMethodNotAllowed DenyReason = "MethodNotAllowed"
	DenyPathNotAllowed   DenyReason = "PathNotAllowed"
	DenyIpNotAllowed     DenyReason = "IpNotAllowed"
	DenyBytesExceed      DenyReason = "BytesExceed"
	DenyTenantMismatch   DenyReason = "TenantMismatch"
)

// DenyCustom builds a DenyReason for a host-defined caveat tag, matching
// the original's Custom(String) variant.
func DenyCustom(tag string) DenyReason { return DenyReason("Custom:" + tag) }

// Decision is the outcome of verifying a well-formed, correctly-MAC'd
// token against a RequestCtx.
type Decision struct {
	Allowed bool
	Reasons []DenyReason // non-empty iff !Allowed
}
