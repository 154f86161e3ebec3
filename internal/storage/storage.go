// Package storage implements the content-addressed blob store: atomic
// put via tmp+rename, HEAD/GET/range-GET, and CID validation, addressed
// directly by BLAKE3 content ids rather than multihash CIDs.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/hashing"
	"github.com/overlaymesh/ronet/internal/rerr"
)

// ErrNotFound is returned when a cid names no blob on disk.
var ErrNotFound = rerr.New(rerr.KindStorage, "NotFound", "no blob for cid", nil)

// ErrBadCid is returned when a caller-supplied cid fails hashing.Valid.
var ErrBadCid = rerr.New(rerr.KindStorage, "BadRequest", "cid is not a valid b3 content id", nil)

// ErrBadRange is returned when a range request cannot be satisfied.
var ErrBadRange = rerr.New(rerr.KindStorage, "BadRange", "range not satisfiable", nil)

// Store is a content-addressed blob store rooted at a single directory.
// Every blob lives at <root>/<cid>; writes are atomic via a temp file in
// the same directory followed by os.Rename.
type Store struct {
	root   string
	logger *logrus.Logger
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, rerr.New(rerr.KindStorage, "IO", "create storage root", err)
	}
	return &Store{root: dir, logger: logger}, nil
}

func (s *Store) path(cid string) string {
	return filepath.Join(s.root, cid)
}

// Put hashes data, writes it atomically under its content id, and
// returns that id. A write of content that already exists at the same
// cid is a no-op: content equality holds by construction of the hash.
func (s *Store) Put(data []byte) (string, error) {
	cid := hashing.Sum(data)
	dst := s.path(cid)

	if _, err := os.Stat(dst); err == nil {
		return cid, nil
	}

	tmp := filepath.Join(s.root, ".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", rerr.New(rerr.KindStorage, "IO", "create temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", rerr.New(rerr.KindStorage, "IO", "write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", rerr.New(rerr.KindStorage, "IO", "sync temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", rerr.New(rerr.KindStorage, "IO", "close temp file", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", rerr.New(rerr.KindStorage, "IO", "rename temp file into place", err)
	}
	if s.logger != nil {
		s.logger.WithField("cid", cid).WithField("bytes", len(data)).Debug("storage: put")
	}
	return cid, nil
}

// HeadInfo describes a blob's metadata without its body.
type HeadInfo struct {
	Cid  string
	Len  int64
	ETag string
}

// Head returns metadata for cid, or ErrNotFound.
func (s *Store) Head(cid string) (HeadInfo, error) {
	if !hashing.Valid(cid) {
		return HeadInfo{}, ErrBadCid
	}
	info, err := os.Stat(s.path(cid))
	if err != nil {
		if os.IsNotExist(err) {
			return HeadInfo{}, ErrNotFound
		}
		return HeadInfo{}, rerr.New(rerr.KindStorage, "IO", "stat blob", err)
	}
	return HeadInfo{Cid: cid, Len: info.Size(), ETag: `"` + cid + `"`}, nil
}

// Get returns the full contents of cid.
func (s *Store) Get(cid string) ([]byte, error) {
	if !hashing.Valid(cid) {
		return nil, ErrBadCid
	}
	data, err := os.ReadFile(s.path(cid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, rerr.New(rerr.KindStorage, "IO", "read blob", err)
	}
	return data, nil
}

// GetRange returns file[start..=endInclusive] for cid along with the
// blob's total length, after validating the bounds against it.
func (s *Store) GetRange(cid string, start, endInclusive int64) (data []byte, totalLen int64, err error) {
	if !hashing.Valid(cid) {
		return nil, 0, ErrBadCid
	}
	f, err := os.Open(s.path(cid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, rerr.New(rerr.KindStorage, "IO", "open blob", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, rerr.New(rerr.KindStorage, "IO", "stat blob", err)
	}
	totalLen = info.Size()

	if start < 0 || endInclusive < start || start >= totalLen {
		return nil, totalLen, ErrBadRange
	}
	if endInclusive >= totalLen {
		endInclusive = totalLen - 1
	}

	length := endInclusive - start + 1
	buf := make([]byte, length)
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, totalLen, rerr.New(rerr.KindStorage, "IO", "seek blob", err)
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, totalLen, rerr.New(rerr.KindStorage, "IO", "read blob range", err)
	}
	return buf, totalLen, nil
}

// Exists reports whether cid names a blob on disk, without validating
// its form first (callers that already validated the cid can skip the
// redundant check Head would otherwise do).
func (s *Store) Exists(cid string) bool {
	_, err := os.Stat(s.path(cid))
	return err == nil
}

func (s *Store) String() string {
	return fmt.Sprintf("storage.Store{root=%s}", s.root)
}
