// Package etag implements the ETag Store: file-per-artifact persistence
// keyed by a cached file's canonical on-disk path, with a fastcache layer
// in front to avoid a disk stat+read on every HEAD.
//
// Given the canonical path of a cached file under <root>/models/..., the
// ETag file lives at the same relative subpath under <root>/etags/...
// Write is create-or-replace; concurrent writers for the same key
// last-write-wins, since the store never holds locks across writes.
package etag

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/VictoriaMetrics/fastcache"
)

// Store is a file-per-artifact ETag persistence layer.
type Store struct {
	modelsRoot string
	etagsRoot  string
	hot        *fastcache.Cache
}

// New builds a Store. modelsRoot and etagsRoot are sibling directories
// under the configured cache root.
func New(modelsRoot, etagsRoot string) *Store {
	return &Store{
		modelsRoot: modelsRoot,
		etagsRoot:  etagsRoot,
		hot:        fastcache.New(8 * 1024 * 1024),
	}
}

func (s *Store) etagPath(canonicalFilePath string) (string, bool) {
	rel, err := filepath.Rel(s.modelsRoot, canonicalFilePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.Join(s.etagsRoot, rel), true
}

// Load returns the trimmed ETag for the file at canonicalFilePath, or
// ("", false) if absent.
func (s *Store) Load(canonicalFilePath string) (string, bool) {
	if v := s.hot.Get(nil, []byte(canonicalFilePath)); len(v) > 0 {
		return string(v), true
	}

	path, ok := s.etagPath(canonicalFilePath)
	if !ok {
		return "", false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	val := strings.TrimSpace(string(b))
	s.hot.Set([]byte(canonicalFilePath), []byte(val))
	return val, true
}

// Save writes value for the file at canonicalFilePath, creating parent
// directories as needed.
func (s *Store) Save(canonicalFilePath, value string) error {
	path, ok := s.etagPath(canonicalFilePath)
	if !ok {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return err
	}
	s.hot.Set([]byte(canonicalFilePath), []byte(value))
	return nil
}
