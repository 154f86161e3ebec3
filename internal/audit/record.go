// Package audit implements the hash-chained audit log: canonical
// encoding, BLAKE3 self-hashing, scalar and SoA chain verification, and
// an in-memory append-only sink.
package audit

import "encoding/json"

// Kind classifies the event an AuditRecord describes.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindCapIssued   Kind = "cap_issued"
	KindCapDenied   Kind = "cap_denied"
	KindIndexWrite  Kind = "index_write"
	KindConfigApply Kind = "config_apply"
	KindKeyRotated  Kind = "key_rotated"
	KindAdminAction Kind = "admin_action"
)

// ActorRef identifies who performed an action.
type ActorRef struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

// SubjectRef identifies what an action was performed on.
type SubjectRef struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

// ReasonCode is a short, stable machine-readable reason tag.
type ReasonCode string

// Record is one entry in a hash-chained, per-stream append-only log.
// Field order here matches the canonical JSON field order; json tags
// are informational only since canonicalization rebuilds the object
// from scratch field-by-field.
type Record struct {
	V        int             `json:"v"`
	TsMs     int64           `json:"ts_ms"`
	WriterID string          `json:"writer_id"`
	Seq      uint64          `json:"seq"`
	Stream   string          `json:"stream"`
	Kind     Kind            `json:"kind"`
	Actor    ActorRef        `json:"actor"`
	Subject  SubjectRef      `json:"subject"`
	Reason   ReasonCode      `json:"reason"`
	Attrs    json.RawMessage `json:"attrs"`
	Prev     string          `json:"prev"`
	SelfHash string          `json:"self_hash"`
}
