// Package diskcache persists parsed documents keyed by the string they were
// loaded from, with a sidecar recording where and when they came from.
package diskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Meta is the sidecar stored next to each cached document.
type Meta struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	ETag      string    `json:"etag,omitempty"`
}

type Store struct {
	dir string
	now func() time.Time
}

// New creates dir if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("diskcache: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskcache: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string { return s.dir }

// Key is the SHA-256 hex digest of source.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func (s *Store) dataPath(source string) string {
	return filepath.Join(s.dir, Key(source)+".json")
}

func (s *Store) metaPath(source string) string {
	return filepath.Join(s.dir, Key(source)+".meta.json")
}

// Load decodes the cached document for source into v. ok is false when
// nothing is cached. A missing sidecar yields a zero Meta.
func (s *Store) Load(source string, v any) (Meta, bool, error) {
	data, err := os.ReadFile(s.dataPath(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, false, nil
		}
		return Meta{}, false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Meta{}, false, fmt.Errorf("diskcache: decode %s: %w", Key(source), err)
	}
	meta, _, err := s.Meta(source)
	if err != nil {
		meta = Meta{Source: source}
	}
	return meta, true, nil
}

// Meta reads only the sidecar.
func (s *Store) Meta(source string) (Meta, bool, error) {
	data, err := os.ReadFile(s.metaPath(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, false, nil
		}
		return Meta{}, false, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, false, fmt.Errorf("diskcache: decode meta %s: %w", Key(source), err)
	}
	return meta, true, nil
}

// Save writes v and its sidecar. Both files are replaced atomically.
func (s *Store) Save(source string, v any, etag string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(s.dataPath(source), data); err != nil {
		return err
	}
	meta, err := json.MarshalIndent(Meta{Source: source, Timestamp: s.now().UTC(), ETag: etag}, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.metaPath(source), meta)
}

// Remove deletes the entry for source. Missing files are not an error.
func (s *Store) Remove(source string) error {
	for _, p := range []string{s.dataPath(source), s.metaPath(source)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Clear wipes the directory and recreates it empty.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0o755)
}

func writeFile(path string, data []byte) error {
	tmp := path + "." + time.Now().Format("20060102150405.000000000") + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
