// Package repofiles persists the repo file list: the authoritative
// enumeration of files in a specific commit of a repository.
// The canonical record is the JSON file at
// repo_files/<repo_id>/<commit>/files.json; a goleveldb index alongside
// it answers "do we have a persisted list for this (repo,commit)" in O(1)
// without a directory stat, which matters once many repos/commits
// accumulate.
package repofiles

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/hfmc/hfmc-go/internal/log"
)

// Store persists repo file lists under root (typically
// <cache-root>/repo_files) and indexes them in a leveldb database at
// <cache-root>/repo_files.index.
type Store struct {
	root string
	idx  *leveldb.DB
}

// New opens (creating if absent) a Store rooted at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	idx, err := leveldb.OpenFile(root+".index", nil)
	if err != nil {
		return nil, err
	}
	return &Store{root: root, idx: idx}, nil
}

// Close releases the underlying index database.
func (s *Store) Close() error {
	return s.idx.Close()
}

func (s *Store) path(repoID, commit string) string {
	return filepath.Join(s.root, repoID, commit, "files.json")
}

func indexKey(repoID, commit string) []byte {
	return []byte(repoID + "|" + commit)
}

// Has reports whether a persisted list exists for (repoID, commit)
// without touching the filesystem.
func (s *Store) Has(repoID, commit string) bool {
	ok, err := s.idx.Has(indexKey(repoID, commit), nil)
	return err == nil && ok
}

// Delete removes the persisted file list and index entry for
// (repoID, commit), used by repo_rm to keep them from being reported as
// present after their files have been removed from the cache.
func (s *Store) Delete(repoID, commit string) error {
	if err := os.Remove(s.path(repoID, commit)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.idx.Delete(indexKey(repoID, commit), nil)
}

// Load reads the persisted file list, or returns (nil, false) if absent.
// It consults the leveldb index first: a negative answer skips the
// filesystem entirely. Most Load calls are for repos/commits that have
// never been fetched.
func (s *Store) Load(repoID, commit string) ([]string, bool) {
	if !s.Has(repoID, commit) {
		return nil, false
	}
	b, err := os.ReadFile(s.path(repoID, commit))
	if err != nil {
		return nil, false
	}
	var files []string
	if err := json.Unmarshal(b, &files); err != nil {
		return nil, false
	}
	return files, true
}

// Save persists files for (repoID, commit) atomically: it writes to a
// temp file in the same directory and renames over the destination, so a
// reader never observes a partially-written list.
func (s *Store) Save(repoID, commit string, files []string) error {
	dst := s.path(repoID, commit)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	b, err := json.Marshal(files)
	if err != nil {
		return err
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}

	if err := s.idx.Put(indexKey(repoID, commit), []byte{1}, nil); err != nil {
		log.Warn("repofiles: failed to update index, Load will not see this entry", "repo", repoID, "commit", commit, "err", err)
		return err
	}
	return nil
}
