// Package rerr defines the error taxonomy shared by every ronet
// subsystem. This package holds no Kind-to-HTTP-status table; callers
// use errors.Is against the sentinel Kind values.
package rerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error from the core taxonomy.
type Kind string

const (
	KindIO         Kind = "io"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindProtocol   Kind = "protocol"
	KindAuth       Kind = "auth"
	KindStorage    Kind = "storage"
	KindKms        Kind = "kms"
	KindAdmission  Kind = "admission"
	KindDht        Kind = "dht"
	KindConfig     Kind = "config"
	KindAudit      Kind = "audit"
)

// Error wraps a Kind, a sub-code, and the underlying cause.
type Error struct {
	Kind    Kind
	Code    string // e.g. "TruncatedHeader", "NotFound", "Busy"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, rerr.New(kind, code, "", nil)) style
// matching on Kind+Code pairs.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// New constructs an *Error. err may be nil.
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Wrap adds context to err without losing the chain; returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf extracts the Kind of err, walking the Unwrap chain. ok is false
// if no *Error is found anywhere in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Sentinels for common codes, used with errors.Is.
var (
	ErrNotFound    = New(KindStorage, "NotFound", "not found", nil)
	ErrBadRequest  = New(KindStorage, "BadRequest", "bad request", nil)
	ErrBusy        = New(KindKms, "Busy", "resource busy", nil)
	ErrTamper      = New(KindAudit, "Tamper", "chain tamper detected", nil)
)
