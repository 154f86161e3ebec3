package audit

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// fieldOrder is the fixed top-level field order canonical bytes are
// rebuilt in; self_hash is never part of it.
var fieldOrder = []string{
	"v", "ts_ms", "writer_id", "seq", "stream", "kind",
	"actor", "subject", "reason", "attrs", "prev",
}

// kv is one entry of an order-preserving JSON object.
type kv struct {
	key string
	val any // nil, bool, json.Number (int only), string, []any, []kv
}

// CanonicalBytes produces a stable byte representation of r without its
// SelfHash field: fields in fixed top-level order, strings NFC-normalized,
// floats rejected anywhere in Attrs, unknown top-level fields rejected.
func CanonicalBytes(r Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, malformed("encode record", err)
	}
	var rawObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawObj); err != nil {
		return nil, malformed("decode record as object", err)
	}
	delete(rawObj, "self_hash")

	out := make([]kv, 0, len(fieldOrder))
	for _, field := range fieldOrder {
		msg, ok := rawObj[field]
		if !ok {
			return nil, rerr.New(rerr.KindAudit, "MissingField", "record missing field "+field, nil)
		}
		delete(rawObj, field)
		v, err := decodeCanonical(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, kv{key: field, val: v})
	}
	if len(rawObj) != 0 {
		return nil, rerr.New(rerr.KindAudit, "UnexpectedFields", "record contained unexpected fields", nil)
	}

	var buf bytes.Buffer
	if err := writeObject(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCanonical(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("decode field", err)
	}
	return normalizeValue(v)
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool:
		return t, nil
	case json.Number:
		s := string(t)
		if strings.ContainsAny(s, ".eE") {
			return nil, rerr.New(rerr.KindAudit, "FloatDisallowed", "floats are not allowed in audit payloads", nil)
		}
		return t, nil
	case string:
		return norm.NFC.String(t), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			nv, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		// json.Unmarshal into `any` loses insertion order; attrs is
		// opaque payload data so stable-sorting its keys keeps the
		// canonical form deterministic without depending on map order.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortStrings(keys)
		out := make([]kv, 0, len(keys))
		for _, k := range keys {
			nv, err := normalizeValue(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kv{key: k, val: nv})
		}
		return out, nil
	default:
		return nil, rerr.New(rerr.KindAudit, "Encode", "unsupported value type in audit payload", nil)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func writeObject(buf *bytes.Buffer, entries []kv) error {
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(e.key)
		if err != nil {
			return malformed("encode key", err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if err := writeValue(buf, e.val); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(t))
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return malformed("encode string", err)
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []kv:
		if err := writeObject(buf, t); err != nil {
			return err
		}
	default:
		return rerr.New(rerr.KindAudit, "Encode", "unsupported canonical value", nil)
	}
	return nil
}

func malformed(msg string, err error) error {
	return rerr.New(rerr.KindAudit, "Encode", msg, err)
}
