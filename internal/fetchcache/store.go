// Package fetchcache is a content-addressed disk cache for raw API
// responses. Each key has at most one current entry; overwriting moves the
// prior entry into an append-only archive instead of destroying it.
package fetchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxAge is the staleness window applied when the caller does not
// override it.
const DefaultMaxAge = 7 * 24 * time.Hour

// ErrCorruptEntry marks a current entry that exists but cannot be decoded.
var ErrCorruptEntry = crerr.New("fetchcache: corrupt cache entry")

// Store is a two-slot disk cache: current/ holds the latest payload per
// key, archive/ accumulates superseded payloads under timestamped names.
type Store struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore opens (or creates) a cache rooted at dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"current", "archive"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{dir: dir, enc: enc, dec: dec}, nil
}

// Key derives the cache key for a query and its variables. Variables are
// serialized with sorted keys, so semantically identical requests always
// map to the same key.
func Key(query string, vars map[string]any) string {
	h := sha256.New()
	h.Write([]byte(query))
	if len(vars) > 0 {
		// encoding/json sorts map keys, which gives a canonical form.
		b, _ := json.Marshal(vars)
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the current payload for key along with its age. ok is false
// when no current entry exists.
func (s *Store) Get(key string) (data []byte, age time.Duration, ok bool, err error) {
	path := s.currentPath(key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("stat cache entry: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("read cache entry: %w", err)
	}
	data, err = s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %s", ErrCorruptEntry, key)
	}
	return data, time.Since(info.ModTime()), true, nil
}

// GetFresh returns the current payload only when it is younger than maxAge.
func (s *Store) GetFresh(key string, maxAge time.Duration) ([]byte, bool, error) {
	data, age, ok, err := s.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if age > maxAge {
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores data as the current payload for key. An existing current
// entry is moved into the archive first, never overwritten in place.
func (s *Store) Put(key string, data []byte) error {
	path := s.currentPath(key)
	if info, err := os.Stat(path); err == nil {
		// Bump the suffix until free: coarse mtime granularity must not
		// let a rename replace an existing archive entry.
		base := info.ModTime().UnixNano()
		var archived string
		for i := int64(0); ; i++ {
			archived = filepath.Join(s.dir, "archive",
				fmt.Sprintf("%s-%d.zst", key, base+i))
			if _, err := os.Stat(archived); os.IsNotExist(err) {
				break
			}
		}
		if err := os.Rename(path, archived); err != nil {
			return fmt.Errorf("archive cache entry: %w", err)
		}
	}

	compressed := s.enc.EncodeAll(data, nil)
	tmp, err := os.CreateTemp(filepath.Join(s.dir, "current"), key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// ArchiveCount returns how many archived payloads exist for key.
func (s *Store) ArchiveCount(key string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "archive", key+"-*.zst"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (s *Store) currentPath(key string) string {
	return filepath.Join(s.dir, "current", key+".zst")
}
