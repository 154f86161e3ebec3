package capability

import "github.com/overlaymesh/ronet/internal/rerr"

// Hard verification errors abort verification before any caveat is
// evaluated (or, for Expired/NotYetValid, as soon as the offending
// caveat is reached). They are distinct from DenyReason, which reports a
// caveat condition that simply wasn't met on an otherwise valid token.
var (
	ErrUnknownKid  = rerr.New(rerr.KindAuth, "UnknownKid", "no MAC key for (kid, tenant)", nil)
	ErrMacMismatch = rerr.New(rerr.KindAuth, "MacMismatch", "token MAC did not verify", nil)
	ErrExpired     = rerr.New(rerr.KindAuth, "Expired", "token has expired", nil)
	ErrNotYetValid = rerr.New(rerr.KindAuth, "NotYetValid", "token is not yet valid", nil)
	ErrMalformed   = rerr.New(rerr.KindAuth, "Malformed", "token is malformed", nil)
	ErrBounds      = rerr.New(rerr.KindAuth, "Bounds", "token exceeds configured bounds", nil)
)

func malformed(err error) error {
	return rerr.New(rerr.KindAuth, "Malformed", "token is malformed", err)
}
