package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/log"
)

// parseResolvePath splits /{user}/{model}/resolve/{revision}/{file}
// where file may itself contain slashes.
func parseResolvePath(p string) (repo, revision, file string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 5)
	if len(parts) != 5 || parts[2] != "resolve" || parts[0] == "" || parts[1] == "" || parts[3] == "" || parts[4] == "" {
		return "", "", "", false
	}
	return parts[0] + "/" + parts[1], parts[3], parts[4], true
}

// handleResolve dispatches the hub-compatible resolve surface: HEAD
// advertises a cached file, GET streams it.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	repo, revision, file, ok := parseResolvePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodHead:
		s.handleSearchFile(w, r, repo, revision, file)
	case http.MethodGet:
		s.handleDownloadFile(w, r, repo, revision, file)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSearchFile advertises a cached file via its ETag, commit hash,
// and size.
func (s *Server) handleSearchFile(w http.ResponseWriter, r *http.Request, repo, revision, file string) {
	rev, ok := s.cfg.Cache.RevisionInfo(repo, revision)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fi, ok := s.cfg.Cache.FileInfo(repo, revision, file)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	etagVal, _ := s.cfg.Etags.Load(fi.Path)

	w.Header().Set("ETag", etagVal)
	w.Header().Set("X-Repo-Commit", rev.CommitHash)
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size, 10))
	w.Header().Set("Location", r.URL.String())
	w.WriteHeader(http.StatusOK)
}

var rangeRe = regexp.MustCompile(`^bytes=(\d+)-(\d+)?$`)

// parseRange returns (first, last). last == -1 means "to end". An
// absent/empty header yields (0, -1) meaning "full file". A malformed
// or inverted range yields ErrBadRequest.
func parseRange(header string) (first, last int64, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, -1, nil
	}

	m := rangeRe.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, apperr.ErrBadRequest
	}

	f, perr := strconv.ParseInt(m[1], 10, 64)
	if perr != nil {
		return 0, 0, apperr.ErrBadRequest
	}
	if m[2] == "" {
		return f, -1, nil
	}

	l, perr := strconv.ParseInt(m[2], 10, 64)
	if perr != nil || l < f {
		return 0, 0, apperr.ErrBadRequest
	}
	return f, l, nil
}

const streamBufSize = 256 * 1024

// handleDownloadFile streams the file honoring an optional byte range,
// in fixed buffers, never materializing the whole file in memory.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request, repo, revision, file string) {
	first, last, err := parseRange(r.Header.Get("Range"))
	if errors.Is(err, apperr.ErrBadRequest) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	fi, ok := s.cfg.Cache.FileInfo(repo, revision, file)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f, err := os.Open(fi.Path)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()

	reqID := uuid.NewString()
	logger := log.New("req", reqID, "repo", repo, "file", file)

	if first > 0 {
		if _, err := f.Seek(first, io.SeekStart); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-disposition", fmt.Sprintf("attachment; filename=%s", file))
	if strings.TrimSpace(r.Header.Get("Range")) != "" {
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	var remaining int64 = -1
	if last >= 0 {
		remaining = last - first + 1
	}

	buf := make([]byte, streamBufSize)
	for {
		toRead := int64(streamBufSize)
		if remaining >= 0 && remaining < toRead {
			toRead = remaining
		}
		if toRead <= 0 {
			break
		}

		n, rerr := f.Read(buf[:toRead])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Debug("stream write failed, closing", "err", werr)
				return
			}
			if remaining >= 0 {
				remaining -= int64(n)
			}
		}
		if rerr != nil {
			break
		}
	}
}

// handlePing serves GET /hfmc_api/peers/ping.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type wirePeer struct {
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Alive bool   `json:"alive"`
	Epoch int64  `json:"epoch"`
}

// handlePeersAlive serves GET /hfmc_api/daemon/peers_alive.
func (s *Server) handlePeersAlive(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	alives := s.cfg.Prober.Alives()
	out := make([]wirePeer, 0, len(alives))
	for _, p := range alives {
		out = append(out, wirePeer{IP: p.IP, Port: p.Port, Alive: p.Alive, Epoch: p.Epoch})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// handlePeersChange serves GET /hfmc_api/daemon/peers_change: reloads the
// registry from configuration and hands the new set to the prober.
func (s *Server) handlePeersChange(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if s.cfg.ReloadPeers != nil {
		peers := s.cfg.ReloadPeers()
		s.cfg.Registry.Replace(peers)
		s.cfg.Prober.UpdatePeers(peers)
	}
	w.WriteHeader(http.StatusOK)
}

// handleStatus serves GET /hfmc_api/daemon/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

// handleStop serves GET /hfmc_api/daemon/stop: flushes a 200 response,
// then triggers a graceful shutdown asynchronously so the client always
// observes the response.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	s.triggerAsyncStop()
}

// handleRepoFileList serves GET /hfmc_api/fetch/repo_file_list/:user/:model/:revision.
func (s *Server) handleRepoFileList(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	repo := ps.ByName("user") + "/" + ps.ByName("model")
	revision := ps.ByName("revision")

	files, ok := s.cfg.RepoFiles.Load(repo, revision)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(files)
}

