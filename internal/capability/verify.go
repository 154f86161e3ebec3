package capability

import "net"

// fixedColumnOrder is the caveat evaluation order the SoA (columnar)
// verifier commits to.
var fixedColumnOrder = []CaveatKind{
	CaveatExp, CaveatNbf, CaveatAud, CaveatMethod,
	CaveatPathPrefix, CaveatIpCidr, CaveatBytesLe, CaveatTenant,
}

// VerifyToken decodes, bounds-checks, MAC-verifies and evaluates tokenB64
// against ctx. A hard error means the token itself is untrustworthy; a
// Decision means the token was valid and its caveats were evaluated.
func VerifyToken(cfg VerifierConfig, tokenB64 string, ctx RequestCtx, keys MacKeyProvider) (Decision, error) {
	env, err := decodeEnvelope(tokenB64, cfg.MaxTokenBytes)
	if err != nil {
		return Decision{}, err
	}
	if cfg.MaxCaveats > 0 && len(env.Token.Caveats) > cfg.MaxCaveats {
		return Decision{}, ErrBounds
	}

	key, ok := keys.KeyFor(env.Token.Kid, env.Token.Tenant)
	if !ok {
		return Decision{}, ErrUnknownKid
	}
	ok, err = macMatches(key, env.Token, env.Mac)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, ErrMacMismatch
	}

	var reasons []DenyReason
	var evalErr error
	if cfg.SoaThreshold > 0 && len(env.Token.Caveats) >= cfg.SoaThreshold {
		reasons, evalErr = evalCaveatsSoA(cfg, ctx, env.Token.Caveats)
	} else {
		reasons, evalErr = evalCaveatsScalar(cfg, ctx, env.Token.Caveats)
	}
	if evalErr != nil {
		return Decision{}, evalErr
	}
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

// VerifyMany verifies every token against the same ctx, preserving input
// order in the result. Any single hard error fails the whole batch,
// matching the original's verify_many contract.
func VerifyMany(cfg VerifierConfig, tokens []string, ctx RequestCtx, keys MacKeyProvider) ([]Decision, error) {
	out := make([]Decision, len(tokens))
	for i, tok := range tokens {
		dec, err := VerifyToken(cfg, tok, ctx, keys)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// evalCaveatsScalar walks caveats in mint order, short-circuiting on the
// first hard error (Exp/Nbf) it meets — matches streaming.rs.
func evalCaveatsScalar(cfg VerifierConfig, ctx RequestCtx, caveats []Caveat) ([]DenyReason, error) {
	var out []DenyReason
	for _, c := range caveats {
		if err := evalOne(cfg, ctx, c, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// evalCaveatsSoA groups caveats by kind into columns and evaluates those
// columns in fixedColumnOrder, then evaluates any remaining kinds not in
// the fixed layout (amnesia, gov_policy_digest, custom) in mint order —
// matches soa_eval.rs's scope.
func evalCaveatsSoA(cfg VerifierConfig, ctx RequestCtx, caveats []Caveat) ([]DenyReason, error) {
	columns := make(map[CaveatKind][]Caveat, len(fixedColumnOrder))
	var rest []Caveat
	inFixedOrder := make(map[CaveatKind]bool, len(fixedColumnOrder))
	for _, k := range fixedColumnOrder {
		inFixedOrder[k] = true
	}
	for _, c := range caveats {
		if inFixedOrder[c.Kind] {
			columns[c.Kind] = append(columns[c.Kind], c)
		} else {
			rest = append(rest, c)
		}
	}

	var out []DenyReason
	for _, kind := range fixedColumnOrder {
		for _, c := range columns[kind] {
			if err := evalOne(cfg, ctx, c, &out); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range rest {
		if err := evalOne(cfg, ctx, c, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func evalOne(cfg VerifierConfig, ctx RequestCtx, c Caveat, out *[]DenyReason) error {
	switch c.Kind {
	case CaveatExp:
		if int64(ctx.NowUnixS) > int64(c.UInt)+cfg.ClockSkewSecs {
			return ErrExpired
		}
	case CaveatNbf:
		if int64(ctx.NowUnixS)+cfg.ClockSkewSecs < int64(c.UInt) {
			return ErrNotYetValid
		}
	case CaveatAud:
		if ctx.PolicyDigestHex != c.Str {
			*out = append(*out, DenyBadAudience)
		}
	case CaveatMethod:
		if !containsFold(c.Strs, ctx.Method) {
			*out = append(*out, DenyMethodNotAllowed)
		}
	case CaveatPathPrefix:
		if !hasPrefix(ctx.Path, c.Str) {
			*out = append(*out, DenyPathNotAllowed)
		}
	case CaveatIpCidr:
		if !ipInCidr(ctx.PeerIP, c.Str) {
			*out = append(*out, DenyIpNotAllowed)
		}
	case CaveatBytesLe:
		if length, ok := extractLen(ctx.Extras); ok && length > c.UInt {
			*out = append(*out, DenyBytesExceed)
		}
	case CaveatTenant:
		if c.Str != ctx.Tenant {
			*out = append(*out, DenyTenantMismatch)
		}
	case CaveatAmnesia:
		if c.Bool != ctx.Amnesia {
			*out = append(*out, DenyCustom("amnesia_mismatch"))
		}
	case CaveatGovPolicyDigest:
		if ctx.PolicyDigestHex != c.Str {
			*out = append(*out, DenyCustom("gov_policy_digest_mismatch"))
		}
	case CaveatCustom:
		// Host-defined; informational only, matches the original's no-op arm.
	}
	return nil
}

func containsFold(list []string, needle string) bool {
	for _, s := range list {
		if equalFold(s, needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func ipInCidr(ip net.IP, cidr string) bool {
	if ip == nil {
		return false
	}
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

func extractLen(extras map[string]any) (uint64, bool) {
	if extras == nil {
		return 0, false
	}
	v, ok := extras["len"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
