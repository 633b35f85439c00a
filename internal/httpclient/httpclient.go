// Package httpclient provides bounded, exception-quiet HTTP primitives
// used by the prober, the fetch orchestrator, and CLI client commands.
// Every call takes a per-call timeout. The probe, lookup and daemon-control
// calls never return an error for a transport failure; they return a
// falsy/zero result instead. FetchFile is the exception: it returns an
// error, so the downloader can tell a failed attempt from a gated repo.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
)

// Per-operation timeout bounds.
const (
	PingTimeout    = 10 * time.Second
	DaemonTimeout  = 2 * time.Second
	ExistTimeout   = 10 * time.Second
	FetchTimeout   = 30 * time.Second
	EtagTimeout    = 10 * time.Second
)

const (
	pathPing        = "/hfmc_api/peers/ping"
	pathDaemonAlive = "/hfmc_api/daemon/peers_alive"
	pathDaemonStop  = "/hfmc_api/daemon/stop"
	pathDaemonUp    = "/hfmc_api/daemon/status"
)

func apiURL(p peer.Peer, path string) string {
	return fmt.Sprintf("http://%s:%d%s", p.IP, p.Port, path)
}

func doGet(ctx context.Context, url string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func doHead(ctx context.Context, url string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// ProbePeer pings target's liveness endpoint and returns it with Alive
// and Epoch set to the result. A transport failure is reported as
// Alive=false, never as an error.
func ProbePeer(ctx context.Context, target peer.Peer) peer.Peer {
	resp, err := doGet(ctx, apiURL(target, pathPing), PingTimeout)
	target.Epoch = time.Now().Unix()
	if err != nil {
		log.Debug("probe failed", "peer", target.Key(), "err", err)
		target.Alive = false
		return target
	}
	defer resp.Body.Close()
	target.Alive = resp.StatusCode == http.StatusOK
	return target
}

// HeadFile issues a HEAD against a peer's resolve endpoint and reports
// whether it advertises the file (status 200).
func HeadFile(ctx context.Context, p peer.Peer, repoID, revision, file string) (peer.Peer, bool) {
	url := apiURL(p, resolvePath(repoID, revision, file))
	resp, err := doHead(ctx, url, ExistTimeout)
	if err != nil {
		return p, false
	}
	defer resp.Body.Close()
	return p, resp.StatusCode == http.StatusOK
}

func resolvePath(repoID, revision, file string) string {
	return fmt.Sprintf("/%s/resolve/%s/%s", repoID, revision, file)
}

// GetAlivePeers queries a daemon's alive-peers endpoint.
func GetAlivePeers(ctx context.Context, daemon peer.Peer) []peer.Peer {
	resp, err := doGet(ctx, apiURL(daemon, pathDaemonAlive), DaemonTimeout)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var wire []struct {
		IP    string `json:"ip"`
		Port  int    `json:"port"`
		Alive bool   `json:"alive"`
		Epoch int64  `json:"epoch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil
	}

	out := make([]peer.Peer, 0, len(wire))
	for _, w := range wire {
		out = append(out, peer.Peer{IP: w.IP, Port: w.Port, Alive: w.Alive, Epoch: w.Epoch})
	}
	return out
}

// IsDaemonRunning checks a daemon's status endpoint.
func IsDaemonRunning(ctx context.Context, daemon peer.Peer) bool {
	resp, err := doGet(ctx, apiURL(daemon, pathDaemonUp), DaemonTimeout)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StopDaemon calls a daemon's graceful-stop endpoint.
func StopDaemon(ctx context.Context, daemon peer.Peer) bool {
	resp, err := doGet(ctx, apiURL(daemon, pathDaemonStop), DaemonTimeout)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NotifyPeersChange calls a daemon's peers_change endpoint so it reloads
// its registry from configuration.
func NotifyPeersChange(ctx context.Context, daemon peer.Peer) bool {
	resp, err := doGet(ctx, apiURL(daemon, "/hfmc_api/daemon/peers_change"), DaemonTimeout)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// GetRepoFileList fetches the persisted repo file list from a peer for an
// exact commit hash.
func GetRepoFileList(ctx context.Context, p peer.Peer, user, model, revision string) []string {
	url := apiURL(p, fmt.Sprintf("/hfmc_api/fetch/repo_file_list/%s/%s/%s", user, model, revision))
	resp, err := doGet(ctx, url, PingTimeout)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var files []string
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil
	}
	return files
}

// FetchFile streams endpoint's GET response for (repoID, revision, file)
// into dst. A 401/403 reports the repo as gated so callers can stop
// trying other endpoints.
func FetchFile(ctx context.Context, endpoint, repoID, revision, file string, dst interface{ Write([]byte) (int, error) }) error {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + resolvePath(repoID, revision, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperr.ErrGatedRepo
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.ErrTransport
	}

	buf := make([]byte, 256*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	return nil
}

// ResolveRevision queries endpoint's model-info API to resolve a ref name
// or short commit-hash prefix to a full commit hash.
func ResolveRevision(ctx context.Context, endpoint, repoID, revision string) (string, bool) {
	url := strings.TrimRight(endpoint, "/") + "/api/models/" + repoID + "/revision/" + revision
	resp, err := doGet(ctx, url, EtagTimeout)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var body struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.SHA == "" {
		return "", false
	}
	return body.SHA, true
}

// ListRepoFiles enumerates every file in a repo at revision by querying
// endpoint's tree API.
func ListRepoFiles(ctx context.Context, endpoint, repoID, revision string) ([]string, bool) {
	url := strings.TrimRight(endpoint, "/") + "/api/models/" + repoID + "/tree/" + revision
	resp, err := doGet(ctx, url, PingTimeout)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var entries []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, false
	}

	var files []string
	for _, e := range entries {
		if e.Type == "file" || e.Type == "" {
			files = append(files, e.Path)
		}
	}
	if len(files) == 0 {
		return nil, false
	}
	return files, true
}

// GetFileEtag issues a HEAD to endpoint and reads the ETag or
// X-Linked-ETag header, stripping surrounding quotes.
func GetFileEtag(ctx context.Context, endpoint, repoID, revision, file string) (string, bool) {
	url := strings.TrimRight(endpoint, "/") + resolvePath(repoID, revision, file)
	resp, err := doHead(ctx, url, EtagTimeout)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	raw := resp.Header.Get("ETag")
	if raw == "" {
		raw = resp.Header.Get("X-Linked-ETag")
	}
	if raw == "" {
		return "", false
	}
	return strings.Trim(raw, `"`), true
}
