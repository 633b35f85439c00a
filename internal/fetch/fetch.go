// Package fetch implements the fetch orchestrator: it decides where to
// fetch a model file or whole repo from, performs the fetch, and records
// the origin's ETag.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/cache"
	"github.com/hfmc/hfmc-go/internal/etag"
	"github.com/hfmc/hfmc-go/internal/httpclient"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/mirror"
	"github.com/hfmc/hfmc-go/internal/peer"
	"github.com/hfmc/hfmc-go/internal/repofiles"
)

// Orchestrator composes the Peer Prober's published alive set, the HTTP
// client layer, and a Downloader into file_add and repo_add.
type Orchestrator struct {
	Cache      *cache.View
	Etags      *etag.Store
	RepoFiles  *repofiles.Store
	Daemon     peer.Peer // this daemon's own address, for alive_peers lookups
	Mirrors    []string  // fixed public mirror endpoints, tried in order
	downloader Downloader

	onRepoAdded func(repoID, revision string, files []string)
}

// New builds an Orchestrator. modelsRoot is the on-disk root the default
// Downloader writes into (the same root the Cache view reads).
func New(c *cache.View, e *etag.Store, rf *repofiles.Store, daemon peer.Peer, mirrors []string, modelsRoot string) *Orchestrator {
	return &Orchestrator{
		Cache:      c,
		Etags:      e,
		RepoFiles:  rf,
		Daemon:     daemon,
		Mirrors:    mirrors,
		downloader: newLocalDownloader(modelsRoot),
	}
}

// OnRepoAdded registers a callback invoked after a successful repo_add,
// e.g. to fire a CDN purge.
func (o *Orchestrator) OnRepoAdded(fn func(repoID, revision string, files []string)) {
	o.onRepoAdded = fn
}

// searchPeers fans out a HEAD for (repoID, revision, file) to every alive
// peer in parallel and returns those that answered 200, preserving the
// registry order of the alive-peers list.
func (o *Orchestrator) searchPeers(ctx context.Context, repoID, file, revision string) []peer.Peer {
	alive := httpclient.GetAlivePeers(ctx, o.Daemon)
	if len(alive) == 0 {
		return nil
	}

	found := make([]bool, len(alive))
	var wg sync.WaitGroup
	for i, p := range alive {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := httpclient.HeadFile(ctx, p, repoID, revision, file)
			found[i] = ok
		}()
	}
	wg.Wait()

	var out []peer.Peer
	for i, p := range alive {
		if found[i] {
			out = append(out, p)
		}
	}
	return out
}

func (o *Orchestrator) candidateBackends(peers []peer.Peer) []mirror.Backend {
	backends := make([]mirror.Backend, 0, len(peers)+len(o.Mirrors))
	for _, p := range peers {
		b, err := mirror.New(fmt.Sprintf("http://%s:%d", p.IP, p.Port))
		if err != nil {
			continue
		}
		backends = append(backends, b)
	}
	for _, m := range o.Mirrors {
		b, err := mirror.New(m)
		if err != nil {
			log.Warn("fetch: skipping unparsable mirror endpoint", "endpoint", m, "err", err)
			continue
		}
		backends = append(backends, b)
	}
	return backends
}

// FileAdd downloads a single file into the cache, preferring a live peer
// that already advertises it, falling back to the public mirror list.
func (o *Orchestrator) FileAdd(ctx context.Context, repoID, file, revision string) (bool, error) {
	if _, ok := o.Cache.FileInfo(repoID, revision, file); ok {
		return true, nil
	}

	peers := o.searchPeers(ctx, repoID, file, revision)
	candidates := o.candidateBackends(peers)

	for _, backend := range candidates {
		log.Info("fetch: attempting file", "repo", repoID, "file", file, "endpoint", backend.String())

		err := o.downloader.Download(ctx, backend, repoID, revision, file)
		if errors.Is(err, apperr.ErrGatedRepo) {
			log.Info("fetch: repository is gated, login required", "repo", repoID)
			return false, apperr.ErrGatedRepo
		}
		if err != nil {
			log.Debug("fetch: candidate failed", "endpoint", backend.String(), "err", err)
			continue
		}

		etagVal, ok := backend.Etag(ctx, repoID, revision, file)
		if !ok {
			log.Debug("fetch: candidate succeeded but no etag, trying next", "endpoint", backend.String())
			continue
		}

		fi, ok := o.Cache.FileInfo(repoID, revision, file)
		if !ok {
			continue
		}
		if err := o.Etags.Save(fi.Path, etagVal); err != nil {
			log.Warn("fetch: failed to persist etag", "repo", repoID, "file", file, "err", err)
		}
		return true, nil
	}

	return false, nil
}

// resolveRevision normalizes revision to a full commit hash, trying the
// local cache first and then each candidate endpoint in turn.
func (o *Orchestrator) resolveRevision(ctx context.Context, repoID, revision string) (string, bool) {
	if rev, ok := o.Cache.RevisionInfo(repoID, revision); ok {
		return rev.CommitHash, true
	}
	for _, endpoint := range o.Mirrors {
		if sha, ok := httpclient.ResolveRevision(ctx, endpoint, repoID, revision); ok {
			return sha, true
		}
	}
	return "", false
}

// fileListFromPeers races the alive peers' persisted file lists and
// returns the first non-empty result.
func (o *Orchestrator) fileListFromPeers(ctx context.Context, repoID, commit string) ([]string, bool) {
	alive := httpclient.GetAlivePeers(ctx, o.Daemon)
	if len(alive) == 0 {
		return nil, false
	}

	org, name := splitRepo(repoID)

	type result struct {
		files []string
	}
	resCh := make(chan result, len(alive))
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range alive {
		p := p
		g.Go(func() error {
			files := httpclient.GetRepoFileList(gctx, p, org, name, commit)
			resCh <- result{files: files}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(resCh)
	}()

	for r := range resCh {
		if len(r.files) > 0 {
			return r.files, true
		}
	}
	return nil, false
}

func (o *Orchestrator) fileListFromMirrors(ctx context.Context, repoID, commit string) ([]string, bool) {
	for _, endpoint := range o.Mirrors {
		if files, ok := httpclient.ListRepoFiles(ctx, endpoint, repoID, commit); ok {
			return files, true
		}
	}
	return nil, false
}

// getRepoFileList resolves the file list without persisting it: the
// local copy is already on disk, and a list obtained from peers/mirrors
// is only written once every file in it has been fetched successfully. A
// failed RepoAdd must not leave behind a persisted list.
func (o *Orchestrator) getRepoFileList(ctx context.Context, repoID, commit string) ([]string, bool) {
	if files, ok := o.RepoFiles.Load(repoID, commit); ok {
		return files, true
	}
	if files, ok := o.fileListFromPeers(ctx, repoID, commit); ok {
		return files, true
	}
	if files, ok := o.fileListFromMirrors(ctx, repoID, commit); ok {
		return files, true
	}
	return nil, false
}

// RepoAdd fetches every file of repoID at revision sequentially,
// recording the persisted repo file list only on full success. No
// partial repositories are ever recorded.
func (o *Orchestrator) RepoAdd(ctx context.Context, repoID, revision string) (bool, error) {
	commit, ok := o.resolveRevision(ctx, repoID, revision)
	if !ok {
		log.Error("fetch: failed to verify revision", "repo", repoID, "revision", revision)
		return false, apperr.ErrNotFound
	}

	files, ok := o.getRepoFileList(ctx, repoID, commit)
	if !ok {
		log.Error("fetch: failed to get file list", "repo", repoID)
		return false, apperr.ErrNotFound
	}
	sort.Strings(files)

	for _, file := range files {
		ok, err := o.FileAdd(ctx, repoID, file, commit)
		if errors.Is(err, apperr.ErrGatedRepo) {
			return false, err
		}
		if !ok {
			log.Error("fetch: failed to add file", "repo", repoID, "file", file)
			return false, nil
		}
	}

	if err := o.RepoFiles.Save(repoID, commit, files); err != nil {
		log.Warn("fetch: failed to persist repo file list", "repo", repoID, "commit", commit, "err", err)
	}

	if o.onRepoAdded != nil {
		o.onRepoAdded(repoID, commit, files)
	}
	return true, nil
}
