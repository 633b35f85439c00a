// Package cache implements the Cache View: a read-only adapter over an
// on-disk, content-addressed model cache. The on-disk geometry mirrors a
// hub-style cache root:
//
//	models/<org>/<repo>/snapshots/<commit>/<file>   (symlink to blob, or file)
//	models/<org>/<repo>/blobs/<blob-id>
//	models/<org>/<repo>/refs/<ref-name>              (contains a commit hash)
//
// The adapter resolves (repo, revision, file) against that layout and
// also implements the removal policy: a blob is only deleted once no
// remaining snapshot symlink still points at it.
package cache

import (
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/hfmc/hfmc-go/internal/apperr"
)

// FileInfo describes a single cached file.
type FileInfo struct {
	RepoID     string
	Revision   string // resolved commit hash
	FileName   string
	Path       string // on-disk snapshot path (what callers should stream)
	BlobPath   string
	Size       int64
}

// RevisionInfo describes a resolved commit.
type RevisionInfo struct {
	RepoID       string
	CommitHash   string
	Refs         []string
	SnapshotPath string
	Files        []string
}

// RepoInfo describes a cached repo and all its known revisions.
type RepoInfo struct {
	RepoID    string
	Path      string
	Revisions []RevisionInfo
}

// View is a read-only query surface over a cache root.
type View struct {
	root string

	revCache *lru.Cache // key: repoID+"@"+revision -> RevisionInfo
}

// New builds a View rooted at root (typically <cache-root>/models).
func New(root string) *View {
	c, _ := lru.New(256)
	return &View{root: root, revCache: c}
}

func splitRepoID(repoID string) (org, name string, ok bool) {
	parts := strings.SplitN(repoID, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (v *View) repoPath(repoID string) (string, bool) {
	org, name, ok := splitRepoID(repoID)
	if !ok {
		return "", false
	}
	return filepath.Join(v.root, org, name), true
}

// RepoInfo resolves a repo_id to its on-disk layout and revisions.
func (v *View) RepoInfo(repoID string) (*RepoInfo, bool) {
	path, ok := v.repoPath(repoID)
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}

	refsDir := filepath.Join(path, "refs")
	refByCommit := map[string][]string{}
	if entries, err := os.ReadDir(refsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			b, err := os.ReadFile(filepath.Join(refsDir, e.Name()))
			if err != nil {
				continue
			}
			commit := strings.TrimSpace(string(b))
			refByCommit[commit] = append(refByCommit[commit], e.Name())
		}
	}

	snapDir := filepath.Join(path, "snapshots")
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		return &RepoInfo{RepoID: repoID, Path: path}, true
	}

	revs := make([]RevisionInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		commit := e.Name()
		snapPath := filepath.Join(snapDir, commit)
		var files []string
		if fileEntries, err := os.ReadDir(snapPath); err == nil {
			for _, fe := range fileEntries {
				if !fe.IsDir() {
					files = append(files, fe.Name())
				}
			}
		}
		revs = append(revs, RevisionInfo{
			RepoID:       repoID,
			CommitHash:   commit,
			Refs:         refByCommit[commit],
			SnapshotPath: snapPath,
			Files:        files,
		})
	}

	return &RepoInfo{RepoID: repoID, Path: path, Revisions: revs}, true
}

// RevisionInfo resolves revision, which may be a ref name (matched
// against the revision's ref set) or a commit-hash prefix (matched with
// strings.HasPrefix). An exact ref-name hit wins over a prefix match;
// among several equally-qualifying prefix matches, the result is
// whichever is seen first and callers must not rely on the order.
func (v *View) RevisionInfo(repoID, revision string) (*RevisionInfo, bool) {
	cacheKey := repoID + "@" + revision
	if cached, ok := v.revCache.Get(cacheKey); ok {
		return cached.(*RevisionInfo), true
	}

	repo, ok := v.RepoInfo(repoID)
	if !ok {
		return nil, false
	}

	var prefixMatch *RevisionInfo
	for i := range repo.Revisions {
		rev := repo.Revisions[i]
		for _, ref := range rev.Refs {
			if ref == revision {
				v.revCache.Add(cacheKey, &rev)
				return &rev, true
			}
		}
		if prefixMatch == nil && strings.HasPrefix(rev.CommitHash, revision) {
			prefixMatch = &rev
		}
	}
	if prefixMatch != nil {
		v.revCache.Add(cacheKey, prefixMatch)
		return prefixMatch, true
	}
	return nil, false
}

// FileInfo resolves (repo, revision, file) to its on-disk path, size, and
// blob id. Returns ok=false if absent.
func (v *View) FileInfo(repoID, revision, file string) (*FileInfo, bool) {
	rev, ok := v.RevisionInfo(repoID, revision)
	if !ok {
		return nil, false
	}

	snapFile := filepath.Join(rev.SnapshotPath, file)
	fi, err := os.Lstat(snapFile)
	if err != nil {
		return nil, false
	}

	blobPath := snapFile
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(snapFile)
		if err != nil {
			return nil, false
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(snapFile), target)
		}
		blobPath = target
	}

	st, err := os.Stat(blobPath)
	if err != nil {
		return nil, false
	}

	return &FileInfo{
		RepoID:   repoID,
		Revision: rev.CommitHash,
		FileName: file,
		Path:     snapFile,
		BlobPath: blobPath,
		Size:     st.Size(),
	}, true
}

// RepoList enumerates all repos present under the cache root.
func (v *View) RepoList() []RepoInfo {
	var out []RepoInfo
	orgs, err := os.ReadDir(v.root)
	if err != nil {
		return out
	}
	for _, org := range orgs {
		if !org.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(v.root, org.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			repoID := org.Name() + "/" + name.Name()
			if info, ok := v.RepoInfo(repoID); ok {
				out = append(out, *info)
			}
		}
	}
	return out
}

// CanDeleteBlob reports whether blobPath may be safely removed: true
// unless some other snapshot symlink in snapshotPath still points at it.
func CanDeleteBlob(fileName, snapshotPath, blobPath string) bool {
	entries, err := os.ReadDir(snapshotPath)
	if err != nil {
		return true
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(snapshotPath, e.Name(), fileName)
		target, err := os.Readlink(candidate)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(candidate), target)
		}
		if target == blobPath {
			return false
		}
	}
	return true
}

// RemoveFile removes the cached file for (repoID, revision, file),
// deleting the snapshot symlink and, if no other snapshot references it,
// the underlying blob.
func (v *View) RemoveFile(repoID, revision, file string) error {
	rev, ok := v.RevisionInfo(repoID, revision)
	if !ok {
		return apperr.ErrNotFound
	}
	fi, ok := v.FileInfo(repoID, revision, file)
	if !ok {
		return apperr.ErrNotFound
	}

	if err := os.Remove(fi.Path); err != nil && !os.IsNotExist(err) {
		return err
	}

	if fi.BlobPath != fi.Path && CanDeleteBlob(file, filepath.Dir(rev.SnapshotPath), fi.BlobPath) {
		_ = os.Remove(fi.BlobPath)
	}

	v.revCache.Remove(repoID + "@" + revision)
	return nil
}
