// Package daemon implements the daemon HTTP surface: a hub-compatible
// request/response protocol plus internal peer-coordination endpoints.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/cache"
	"github.com/hfmc/hfmc-go/internal/etag"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
	"github.com/hfmc/hfmc-go/internal/prober"
	"github.com/hfmc/hfmc-go/internal/repofiles"
)

// Config is passed into the HTTP server constructor; handlers close over
// it rather than reading a package-level global.
type Config struct {
	Port      int
	Cache     *cache.View
	Etags     *etag.Store
	RepoFiles *repofiles.Store
	Prober    *prober.Prober
	Registry  *peer.Registry

	// ReloadPeers re-reads the peer list from the configuration
	// collaborator; invoked by GET /hfmc_api/daemon/peers_change.
	ReloadPeers func() []peer.Peer
}

// Server is the daemon's HTTP surface.
type Server struct {
	cfg      Config
	httpSrv  *http.Server
	stopOnce chan struct{}
}

// New builds a Server wired to cfg. It does not start listening; call
// Serve.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, stopOnce: make(chan struct{})}

	router := httprouter.New()
	router.GET("/hfmc_api/peers/ping", s.handlePing)
	router.GET("/hfmc_api/daemon/peers_alive", s.handlePeersAlive)
	router.GET("/hfmc_api/daemon/peers_change", s.handlePeersChange)
	router.GET("/hfmc_api/daemon/status", s.handleStatus)
	router.GET("/hfmc_api/daemon/stop", s.handleStop)
	router.GET("/hfmc_api/fetch/repo_file_list/:user/:model/:revision", s.handleRepoFileList)

	// The resolve surface starts with two free-form path segments, which
	// httprouter cannot register alongside the static /hfmc_api tree
	// (param and static segments conflict at the root). It is dispatched
	// from the router's fallback instead, parsed by hand.
	router.NotFound = http.HandlerFunc(s.handleResolve)

	handler := cors.Default().Handler(router)

	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve starts the prober and blocks serving HTTP until Stop is called.
// On a port-already-in-use error it logs and returns without side
// effects.
func (s *Server) Serve() error {
	s.cfg.Prober.Start()

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		log.Error("daemon: failed to start", "addr", s.httpSrv.Addr, "err", err)
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d already in use: %w", s.cfg.Port, apperr.ErrConflict)
		}
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP server down and halts the prober.
func (s *Server) Stop(ctx context.Context) {
	_ = s.httpSrv.Shutdown(ctx)
	s.cfg.Prober.Stop()
}

// triggerAsyncStop lets the stop handler flush its own 200 response to
// the client before the server begins shutting down, so the client
// always observes the response.
func (s *Server) triggerAsyncStop() {
	go func() {
		time.Sleep(50 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()
}
