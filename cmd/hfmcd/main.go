// Command hfmcd is the daemon process: it wires the cache view, etag
// store, repo-file-list store, and peer prober together behind the HTTP
// surface in internal/daemon. It is started detached by the hfmc CLI's
// "daemon start" command (internal/daemonctl) and is not meant to be run
// interactively. Fetch operations (file_add/repo_add) are driven by the
// CLI process itself, against this daemon's alive-peers endpoint; the
// daemon only serves cached artifacts and coordinates liveness.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hfmc/hfmc-go/internal/cache"
	"github.com/hfmc/hfmc-go/internal/config"
	"github.com/hfmc/hfmc-go/internal/daemon"
	"github.com/hfmc/hfmc-go/internal/etag"
	"github.com/hfmc/hfmc-go/internal/httpclient"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
	"github.com/hfmc/hfmc-go/internal/prober"
	"github.com/hfmc/hfmc-go/internal/repofiles"
)

func main() {
	port := flag.Int("port", config.DefaultDaemonPort, "daemon listen port")
	flag.Parse()

	log.SetLevel(log.LvlInfo)

	reader := config.NewReader()
	cacheRoot := reader.GetCacheRoot()
	modelsRoot := filepath.Join(cacheRoot, "models")
	etagsRoot := filepath.Join(cacheRoot, "etags")
	repoFilesRoot := filepath.Join(cacheRoot, "repo_files")

	for _, dir := range []string{modelsRoot, etagsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "hfmcd: create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	cacheView := cache.New(modelsRoot)
	etagStore := etag.New(modelsRoot, etagsRoot)

	repoFileStore, err := repofiles.New(repoFilesRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hfmcd: open repo file store: %v\n", err)
		os.Exit(1)
	}
	defer repoFileStore.Close()

	registry := peer.NewRegistry(reader.GetPeers())
	daemonProber := prober.New(registry.List(), httpclient.ProbePeer)

	srv := daemon.New(daemon.Config{
		Port:      *port,
		Cache:     cacheView,
		Etags:     etagStore,
		RepoFiles: repoFileStore,
		Prober:    daemonProber,
		Registry:  registry,
		ReloadPeers: func() []peer.Peer {
			return config.NewReader().GetPeers()
		},
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	log.Info("hfmcd: listening", "port", *port, "cache_root", cacheRoot)
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "hfmcd: %v\n", err)
		os.Exit(1)
	}
}
