package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/overlaymesh/ronet/internal/hashing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutProducesRetrievableContentId(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello, overlay")

	cid, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cid != hashing.Sum(data) {
		t.Fatalf("cid mismatch: got %s want %s", cid, hashing.Sum(data))
	}

	got, err := s.Get(cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
}

func TestPutIsIdempotentForSameContent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same bytes twice")

	cid1, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put #1: %v", err)
	}
	cid2, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put #2: %v", err)
	}
	if cid1 != cid2 {
		t.Fatalf("expected identical cids, got %s and %s", cid1, cid2)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one blob on disk, got %d entries", len(entries))
	}
}

func TestPutLeavesNoTempFilesBehind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put([]byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" || e.Name()[0] == '.' {
			t.Fatalf("found leftover temp file: %s", e.Name())
		}
	}
}

func TestHeadReturnsLenAndETag(t *testing.T) {
	s := newTestStore(t)
	data := []byte("head me")
	cid, _ := s.Put(data)

	info, err := s.Head(cid)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.Len != int64(len(data)) {
		t.Fatalf("Len = %d, want %d", info.Len, len(data))
	}
	if info.ETag != `"`+cid+`"` {
		t.Fatalf("ETag = %q, want %q", info.ETag, `"`+cid+`"`)
	}
}

func TestHeadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Head(hashing.Sum([]byte("never written")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHeadRejectsBadCid(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Head("not-a-cid")
	if !errors.Is(err, ErrBadCid) {
		t.Fatalf("expected ErrBadCid, got %v", err)
	}
}

func TestGetRangeReturnsExactSlice(t *testing.T) {
	s := newTestStore(t)
	data := []byte("0123456789")
	cid, _ := s.Put(data)

	got, total, err := s.GetRange(cid, 2, 5)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(got) != "2345" {
		t.Fatalf("GetRange = %q, want %q", got, "2345")
	}
	if total != int64(len(data)) {
		t.Fatalf("total = %d, want %d", total, len(data))
	}
}

func TestGetRangeClampsEndToLength(t *testing.T) {
	s := newTestStore(t)
	data := []byte("0123456789")
	cid, _ := s.Put(data)

	got, total, err := s.GetRange(cid, 8, 1000)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(got) != "89" {
		t.Fatalf("GetRange = %q, want %q", got, "89")
	}
	if total != 10 {
		t.Fatalf("total = %d, want 10", total)
	}
}

func TestGetRangeRejectsStartBeyondLength(t *testing.T) {
	s := newTestStore(t)
	data := []byte("short")
	cid, _ := s.Put(data)

	_, _, err := s.GetRange(cid, 100, 200)
	if !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}

func TestGetRangeRejectsInvertedRange(t *testing.T) {
	s := newTestStore(t)
	data := []byte("short")
	cid, _ := s.Put(data)

	_, _, err := s.GetRange(cid, 4, 1)
	if !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(hashing.Sum([]byte("absent")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
