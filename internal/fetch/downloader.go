package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/hfmc/hfmc-go/internal/mirror"
)

// Downloader physically fetches a file from an endpoint and places it
// into the cache. localDownloader is the implementation New installs,
// writing into the same on-disk layout internal/cache reads. The
// Orchestrator's downloader field is unexported and New takes no
// Downloader, so callers outside this package cannot substitute another.
type Downloader interface {
	Download(ctx context.Context, backend mirror.Backend, repoID, revision, file string) error
}

// localDownloader writes directly into a cache root laid out the way
// internal/cache expects: content-addressed blobs plus a per-commit
// snapshot directory of symlinks.
type localDownloader struct {
	modelsRoot string
}

func newLocalDownloader(modelsRoot string) *localDownloader {
	return &localDownloader{modelsRoot: modelsRoot}
}

func splitRepo(repoID string) (org, name string) {
	for i := 0; i < len(repoID); i++ {
		if repoID[i] == '/' {
			return repoID[:i], repoID[i+1:]
		}
	}
	return "", repoID
}

// Download streams backend's copy of (repoID, revision, file) to a temp
// blob, names the blob by the sha256 of its content, and links it into
// the commit's snapshot directory.
func (d *localDownloader) Download(ctx context.Context, backend mirror.Backend, repoID, revision, file string) error {
	org, name := splitRepo(repoID)
	repoPath := filepath.Join(d.modelsRoot, org, name)
	blobsDir := filepath.Join(repoPath, "blobs")
	snapDir := filepath.Join(repoPath, "snapshots", revision)

	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(blobsDir, "incomplete-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	hasher := sha256.New()
	writer := io.MultiWriter(tmp, hasher)

	if err := backend.Fetch(ctx, repoID, revision, file, writer); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	blobID := hex.EncodeToString(hasher.Sum(nil))
	blobPath := filepath.Join(blobsDir, blobID)
	if err := os.Rename(tmpPath, blobPath); err != nil {
		return err
	}

	snapFile := filepath.Join(snapDir, file)
	if err := os.MkdirAll(filepath.Dir(snapFile), 0o755); err != nil {
		return err
	}
	_ = os.Remove(snapFile)
	rel, err := filepath.Rel(filepath.Dir(snapFile), blobPath)
	if err != nil {
		rel = blobPath
	}
	return os.Symlink(rel, snapFile)
}
