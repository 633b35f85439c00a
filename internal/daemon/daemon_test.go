package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfmc/hfmc-go/internal/cache"
	"github.com/hfmc/hfmc-go/internal/etag"
	"github.com/hfmc/hfmc-go/internal/peer"
	"github.com/hfmc/hfmc-go/internal/prober"
	"github.com/hfmc/hfmc-go/internal/repofiles"
)

// testServer builds a Server with a single cached file
// acme/widget@<commit>/config.json containing fileContents, and returns
// an httptest server fronting it plus the resolved commit hash.
func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	root := t.TempDir()
	repoPath := filepath.Join(root, "acme", "widget")
	commit := "0123456789abcdef"
	blobsDir := filepath.Join(repoPath, "blobs")
	snapDir := filepath.Join(repoPath, "snapshots", commit)
	refsDir := filepath.Join(repoPath, "refs")
	require.NoError(t, os.MkdirAll(blobsDir, 0o755))
	require.NoError(t, os.MkdirAll(snapDir, 0o755))
	require.NoError(t, os.MkdirAll(refsDir, 0o755))

	fileContents := "hello world"
	blobPath := filepath.Join(blobsDir, "deadbeef")
	require.NoError(t, os.WriteFile(blobPath, []byte(fileContents), 0o644))

	snapFile := filepath.Join(snapDir, "config.json")
	rel, err := filepath.Rel(snapDir, blobPath)
	require.NoError(t, err)
	require.NoError(t, os.Symlink(rel, snapFile))
	require.NoError(t, os.WriteFile(filepath.Join(refsDir, "main"), []byte(commit), 0o644))

	cacheView := cache.New(root)
	etagStore := etag.New(root, t.TempDir())
	require.NoError(t, etagStore.Save(snapFile, "abc-etag"))

	repoFileStore, err := repofiles.New(filepath.Join(t.TempDir(), "repo_files"))
	require.NoError(t, err)
	t.Cleanup(func() { repoFileStore.Close() })
	require.NoError(t, repoFileStore.Save("acme/widget", commit, []string{"config.json"}))

	noProbe := func(ctx context.Context, p peer.Peer) peer.Peer { return p }
	registry := peer.NewRegistry(nil)

	srv := New(Config{
		Port:      0,
		Cache:     cacheView,
		Etags:     etagStore,
		RepoFiles: repoFileStore,
		Prober:    prober.New(nil, noProbe),
		Registry:  registry,
		ReloadPeers: func() []peer.Peer {
			return nil
		},
	})

	router := srv.httpSrv.Handler
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, commit
}

func TestHandleSearchFile(t *testing.T) {
	ts, commit := testServer(t)

	req, err := http.NewRequest(http.MethodHead, ts.URL+"/acme/widget/resolve/"+commit+"/config.json", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-etag", resp.Header.Get("ETag"))
	assert.Equal(t, "11", resp.Header.Get("Content-Length"))
}

func TestHandleSearchFileMissing(t *testing.T) {
	ts, commit := testServer(t)

	req, err := http.NewRequest(http.MethodHead, ts.URL+"/acme/widget/resolve/"+commit+"/nope.bin", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleDownloadFileFull(t *testing.T) {
	ts, commit := testServer(t)

	resp, err := http.Get(ts.URL + "/acme/widget/resolve/" + commit + "/config.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestHandleDownloadFileRange(t *testing.T) {
	ts, commit := testServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/acme/widget/resolve/"+commit+"/config.json", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=6-10")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "world", string(body))
}

func TestHandleDownloadFileBadRange(t *testing.T) {
	ts, commit := testServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/acme/widget/resolve/"+commit+"/config.json", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=10-5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlePing(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/hfmc_api/peers/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestHandlePeersAliveEmpty(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/hfmc_api/daemon/peers_alive")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var peers []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&peers))
	assert.Empty(t, peers)
}

func TestHandleRepoFileList(t *testing.T) {
	ts, commit := testServer(t)

	resp, err := http.Get(ts.URL + "/hfmc_api/fetch/repo_file_list/acme/widget/" + commit)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var files []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
	assert.Equal(t, []string{"config.json"}, files)
}

func TestHandleRepoFileListMissing(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/hfmc_api/fetch/repo_file_list/acme/widget/deadbeefdeadbeef")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStatus(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/hfmc_api/daemon/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
