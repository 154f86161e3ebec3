package gateway

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overlaymesh/ronet/internal/naming"
)

func writeBundle(t *testing.T, root, addr string, payload []byte, payment *naming.Payment) string {
	t.Helper()
	dir := filepath.Join(root, addr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m := &naming.Manifest{
		SchemaVersion: 2,
		Tld:           "o",
		Address:       addr,
		ContentHash:   "b3:deadbeef",
		Kind:          naming.KindBlob,
		Mime:          "application/octet-stream",
		Size:          int64(len(payload)),
		CreatedAt:     time.Unix(0, 0).UTC(),
		Payment:       payment,
	}
	data, err := m.EncodeTOML()
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Manifest.toml"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "payload.bin"), payload, 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	return dir
}

func TestHandlePayloadFullBody(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("hello world"), nil)
	s := NewResourceStore(root, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	s.HandlePayload(rec, req, "addr1", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello world" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandlePayloadNotModified(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("hello world"), nil)
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	req.Header.Set("If-None-Match", `"b3:deadbeef"`)
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "addr1", true)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
}

func TestHandlePayloadRangeRequest(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("0123456789"), nil)
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "addr1", true)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Fatalf("expected range body '234', got %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Range") != "bytes 2-4/10" {
		t.Fatalf("unexpected Content-Range %q", rec.Header().Get("Content-Range"))
	}
}

func TestHandlePayloadRangeUnsatisfiable(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("0123456789"), nil)
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	req.Header.Set("Range", "bytes=100-200")
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "addr1", true)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", rec.Code)
	}
}

func TestHandlePayloadPaymentRequired(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("data"), &naming.Payment{Required: true, Wallet: "wallet-1"})
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "addr1", true)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if rec.Header().Get("X-Payment-Wallet") != "wallet-1" {
		t.Fatalf("expected wallet header echoed, got %v", rec.Header())
	}
}

func TestHandlePayloadPaymentSkippedWhenEnforcementDisabled(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("data"), &naming.Payment{Required: true})
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1/payload.bin", nil)
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "addr1", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when payment enforcement disabled, got %d", rec.Code)
	}
}

func TestHandlePayloadUnknownAddress(t *testing.T) {
	root := t.TempDir()
	s := NewResourceStore(root, nil)
	req := httptest.NewRequest(http.MethodGet, "/o/missing/payload.bin", nil)
	rec := httptest.NewRecorder()
	s.HandlePayload(rec, req, "missing", true)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleManifestHeadSetsContentLength(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("x"), nil)
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodHead, "/o/addr1/Manifest.toml", nil)
	rec := httptest.NewRecorder()
	s.HandleManifest(rec, req, "addr1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Length") == "" {
		t.Fatalf("expected Content-Length set on HEAD")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body on HEAD, got %d bytes", rec.Body.Len())
	}
}

func TestHandleDiscoverRedirectsToManifest(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "addr1", []byte("x"), nil)
	s := NewResourceStore(root, nil)

	req := httptest.NewRequest(http.MethodGet, "/o/addr1", nil)
	rec := httptest.NewRecorder()
	s.HandleDiscover(rec, req, "addr1")

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/o/addr1/Manifest.toml" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestSelectPayloadPrefersPrecompressedSibling(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "payload.bin"), []byte("identity"), 0o644); err != nil {
		t.Fatalf("write identity: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "payload.bin.br"), []byte("brotli"), 0o644); err != nil {
		t.Fatalf("write brotli sibling: %v", err)
	}

	path, enc := selectPayload(dir, "gzip, br")
	if enc != "br" {
		t.Fatalf("expected br selected, got %q", enc)
	}
	if filepath.Base(path) != "payload.bin.br" {
		t.Fatalf("expected brotli sibling path, got %q", path)
	}
}

func TestParseRangeSuffixForm(t *testing.T) {
	start, end, ok := parseRange("bytes=-3", 10)
	if !ok || start != 7 || end != 9 {
		t.Fatalf("expected [7,9], got start=%d end=%d ok=%v", start, end, ok)
	}
}

func TestParseRangeRejectsMultiRange(t *testing.T) {
	_, _, ok := parseRange("bytes=0-1,2-3", 10)
	if ok {
		t.Fatalf("expected multi-range to be rejected")
	}
}

func TestEtagMatchesWildcard(t *testing.T) {
	if !etagMatches("*", `"anything"`) {
		t.Fatalf("expected wildcard to match")
	}
}
