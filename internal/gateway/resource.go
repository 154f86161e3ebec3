package gateway

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/overlaymesh/ronet/internal/naming"
)

// IndexLookup resolves an address to its bundle directory via whatever
// fast index a deployment maintains (e.g. a registry snapshot); Lookup
// returning ok=false sends resolution to the on-disk fallback.
type IndexLookup interface {
	Lookup(addr string) (dir string, ok bool)
}

// ResourceStore resolves addresses to bundle directories on disk, via an
// optional index lookup falling back to <root>/<addr>/, and serves their
// Manifest.toml / payload.bin with HTTP representation semantics.
type ResourceStore struct {
	root  string
	index IndexLookup
}

// NewResourceStore roots resolution at dir; index may be nil to always
// use the on-disk fallback.
func NewResourceStore(dir string, index IndexLookup) *ResourceStore {
	return &ResourceStore{root: dir, index: index}
}

func (s *ResourceStore) resolveDir(addr string) (string, bool) {
	if s.index != nil {
		if dir, ok := s.index.Lookup(addr); ok {
			return dir, true
		}
	}
	dir := filepath.Join(s.root, addr)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, true
	}
	return "", false
}

func (s *ResourceStore) loadManifest(dir string) (*naming.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "Manifest.toml"))
	if err != nil {
		return nil, err
	}
	return naming.DecodeManifestTOML(data)
}

// HandleDiscover implements GET /o/:addr: redirect to the manifest.
func (s *ResourceStore) HandleDiscover(w http.ResponseWriter, r *http.Request, addr string) {
	if _, ok := s.resolveDir(addr); !ok {
		notFound(w, CorrIDFrom(r.Context()), "unknown address")
		return
	}
	http.Redirect(w, r, "/o/"+addr+"/Manifest.toml", http.StatusFound)
}

// HandleManifest implements GET /o/:addr/Manifest.toml.
func (s *ResourceStore) HandleManifest(w http.ResponseWriter, r *http.Request, addr string) {
	dir, ok := s.resolveDir(addr)
	if !ok {
		notFound(w, CorrIDFrom(r.Context()), "unknown address")
		return
	}
	data, err := os.ReadFile(filepath.Join(dir, "Manifest.toml"))
	if err != nil {
		notFound(w, CorrIDFrom(r.Context()), "manifest missing")
		return
	}
	w.Header().Set("Content-Type", "application/toml")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(data)
}

var precompressedExts = []struct {
	accept   string
	suffix   string
	encoding string
}{
	{"br", ".br", "br"},
	{"zstd", ".zst", "zstd"},
	{"zst", ".zst", "zstd"},
	{"gzip", ".gz", "gzip"},
}

// selectPayload picks the payload file to serve for the given
// Accept-Encoding header: it tries br, zstd, zst and gzip in that fixed
// order (not the client's order) and serves the first one the header
// mentions that has an existing precompressed sibling, falling back to
// identity.
func selectPayload(dir, acceptEncoding string) (path, contentEncoding string) {
	identity := filepath.Join(dir, "payload.bin")
	if acceptEncoding == "" {
		return identity, ""
	}
	lower := strings.ToLower(acceptEncoding)
	for _, cand := range precompressedExts {
		if !strings.Contains(lower, cand.accept) {
			continue
		}
		sib := identity + cand.suffix
		if _, err := os.Stat(sib); err == nil {
			return sib, cand.encoding
		}
	}
	return identity, ""
}

// HandlePayload implements GET/HEAD /o/:addr/payload.bin: conditional
// GET (304), byte-range (206/416), precompressed-variant selection, and
// manifest-declared payment enforcement (402).
func (s *ResourceStore) HandlePayload(w http.ResponseWriter, r *http.Request, addr string, enforcePayments bool) {
	corrID := CorrIDFrom(r.Context())
	dir, ok := s.resolveDir(addr)
	if !ok {
		notFound(w, corrID, "unknown address")
		return
	}
	manifest, err := s.loadManifest(dir)
	if err != nil {
		notFound(w, corrID, "manifest missing")
		return
	}
	if enforcePayments && manifest.Payment != nil && manifest.Payment.Required {
		w.Header().Set("X-Payment-Required", "true")
		if manifest.Payment.Wallet != "" {
			w.Header().Set("X-Payment-Wallet", manifest.Payment.Wallet)
		}
		paymentRequired(w, corrID, "payment required for this resource")
		return
	}

	path, contentEncoding := selectPayload(dir, r.Header.Get("Accept-Encoding"))
	info, err := os.Stat(path)
	if err != nil {
		notFound(w, corrID, "payload missing")
		return
	}
	etag := `"` + manifest.ContentHash + `"`

	if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" && etagMatches(ifNoneMatch, etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Accept-Ranges", "bytes")
	if contentEncoding != "" {
		w.Header().Set("Content-Encoding", contentEncoding)
	}
	if manifest.Mime != "" {
		w.Header().Set("Content-Type", manifest.Mime)
	}

	total := info.Size()

	if rangeHdr := r.Header.Get("Range"); rangeHdr != "" {
		start, end, ok := parseRange(rangeHdr, total)
		if !ok {
			rangeNotSatisfiable(w, corrID, "range not satisfiable", total)
			return
		}
		f, err := os.Open(path)
		if err != nil {
			notFound(w, corrID, "payload missing")
			return
		}
		defer f.Close()
		length := end - start + 1
		w.Header().Set("Content-Range", "bytes "+itoa64(start)+"-"+itoa64(end)+"/"+itoa64(total))
		w.Header().Set("Content-Length", itoa64(length))
		w.WriteHeader(http.StatusPartialContent)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := f.Seek(start, 0); err != nil {
			return
		}
		_, _ = io.CopyN(w, f, length)
		return
	}

	w.Header().Set("Content-Length", itoa64(total))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		notFound(w, corrID, "payload missing")
		return
	}
	defer f.Close()
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// etagMatches implements the If-None-Match comparison: "*" matches any
// existing resource, otherwise the header is a comma-separated list of
// ETags compared for an exact match.
func etagMatches(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(part) == etag {
			return true
		}
	}
	return false
}

// parseRange parses a single "bytes=S-E" | "bytes=S-" | "bytes=-N" range
// against total, returning the inclusive [start,end] and false if the
// header is malformed, multi-range, or unsatisfiable (416, multi-range
// unsupported).
func parseRange(header string, total int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := header[len(prefix):]
	if strings.Contains(spec, ",") {
		return 0, 0, false // multi-range not supported
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	switch {
	case startStr == "" && endStr == "":
		return 0, 0, false
	case startStr == "":
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > total {
			n = total
		}
		return total - n, total - 1, total > 0
	case endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 || s >= total {
			return 0, 0, false
		}
		return s, total - 1, true
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s || s >= total {
			return 0, 0, false
		}
		if e >= total {
			e = total - 1
		}
		return s, e, true
	}
}
