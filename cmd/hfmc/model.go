package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/cache"
	"github.com/hfmc/hfmc-go/internal/cdn"
	"github.com/hfmc/hfmc-go/internal/config"
	"github.com/hfmc/hfmc-go/internal/etag"
	"github.com/hfmc/hfmc-go/internal/fetch"
	"github.com/hfmc/hfmc-go/internal/httpclient"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
	"github.com/hfmc/hfmc-go/internal/repofiles"
)

var (
	fileFlag = cli.StringFlag{Name: "file", Usage: "single file within the repo, instead of the whole repo"}
	revFlag  = cli.StringFlag{Name: "revision", Value: "main", Usage: "commit hash or ref name"}
)

var modelCommand = cli.Command{
	Name:  "model",
	Usage: "manage cached model artifacts",
	Subcommands: []cli.Command{
		modelLsCommand,
		modelAddCommand,
		modelRmCommand,
		modelSearchCommand,
	},
}

var modelLsCommand = cli.Command{
	Name:      "ls",
	Usage:     "list cached repos, or the files of one repo",
	ArgsUsage: "[repo]",
	Action:    modelLs,
}

var modelAddCommand = cli.Command{
	Name:      "add",
	Usage:     "fetch a repo (or a single file with --file) into the cache",
	ArgsUsage: "<repo>",
	Flags:     []cli.Flag{fileFlag, revFlag},
	Action:    modelAdd,
}

var modelRmCommand = cli.Command{
	Name:      "rm",
	Usage:     "remove a cached repo or file",
	ArgsUsage: "<repo>",
	Flags:     []cli.Flag{fileFlag, revFlag},
	Action:    modelRm,
}

var modelSearchCommand = cli.Command{
	Name:      "search",
	Usage:     "list peers advertising a file",
	ArgsUsage: "<repo>",
	Flags:     []cli.Flag{fileFlag, revFlag},
	Action:    modelSearch,
}

// cacheRoots resolves the on-disk layout shared by the daemon and the
// CLI's in-process collaborators.
func cacheRoots() (modelsRoot, etagsRoot, repoFilesRoot string) {
	root := config.NewReader().GetCacheRoot()
	return filepath.Join(root, "models"), filepath.Join(root, "etags"), filepath.Join(root, "repo_files")
}

func localDaemonPeer(ctx *cli.Context) peer.Peer {
	return peer.Peer{IP: "127.0.0.1", Port: ctx.GlobalInt(portFlag.Name)}
}

// buildOrchestrator constructs the fetch pipeline in-process for
// CLI-driven adds. It talks to the local daemon only over HTTP, for
// alive-peer discovery.
func buildOrchestrator(ctx *cli.Context) (*fetch.Orchestrator, *repofiles.Store, error) {
	modelsRoot, etagsRoot, repoFilesRoot := cacheRoots()
	cacheView := cache.New(modelsRoot)
	etagStore := etag.New(modelsRoot, etagsRoot)
	repoFileStore, err := repofiles.New(repoFilesRoot)
	if err != nil {
		return nil, nil, err
	}

	reader := config.NewReader()
	orch := fetch.New(cacheView, etagStore, repoFileStore, localDaemonPeer(ctx), reader.GetMirrors(), modelsRoot)

	cdnSettings := reader.GetCDNSettings()
	purger, err := cdn.NewPurger(cdnSettings.APIToken, cdnSettings.ZoneID, cdnSettings.URLBase)
	if err != nil {
		log.Warn("hfmc: cdn purger disabled", "err", err)
	}
	orch.OnRepoAdded(func(repoID, revision string, files []string) {
		purger.PurgeRepo(context.Background(), repoID, revision, files)
	})

	return orch, repoFileStore, nil
}

func requireRepoArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", fmt.Errorf("usage: hfmc model %s <repo>", ctx.Command.Name)
	}
	return ctx.Args().Get(0), nil
}

func modelAdd(ctx *cli.Context) error {
	repo, err := requireRepoArg(ctx)
	if err != nil {
		return err
	}
	file := ctx.String(fileFlag.Name)
	revision := ctx.String(revFlag.Name)

	if file == "" && revision == "main" {
		return fmt.Errorf("to keep repo version integrity, adding a whole repo requires an explicit commit hash via --revision")
	}

	orch, repoFileStore, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer repoFileStore.Close()

	background := context.Background()
	var ok bool
	var target string
	if file != "" {
		target = fmt.Sprintf("File %s/%s", repo, file)
		ok, err = orch.FileAdd(background, repo, file, revision)
	} else {
		target = fmt.Sprintf("Model %s", repo)
		ok, err = orch.RepoAdd(background, repo, revision)
	}

	if errors.Is(err, apperr.ErrGatedRepo) {
		fmt.Println("Model is gated. Configure credentials before retrying.")
		return nil
	}
	if ok {
		fmt.Printf("%s added.\n", target)
	} else {
		fmt.Printf("%s failed to add.\n", target)
	}
	return nil
}

func modelRm(ctx *cli.Context) error {
	repo, err := requireRepoArg(ctx)
	if err != nil {
		return err
	}
	file := ctx.String(fileFlag.Name)
	revision := ctx.String(revFlag.Name)

	modelsRoot, _, repoFilesRoot := cacheRoots()
	cacheView := cache.New(modelsRoot)
	repoFileStore, err := repofiles.New(repoFilesRoot)
	if err != nil {
		return err
	}
	defer repoFileStore.Close()

	if file != "" {
		if revision == "" {
			return fmt.Errorf("remove file failed, must specify --revision")
		}
		if err := cacheView.RemoveFile(repo, revision, file); err != nil {
			fmt.Println("File failed to remove.")
			return nil
		}
		fmt.Println("File remove is done.")
		return nil
	}

	rev, ok := cacheView.RevisionInfo(repo, revision)
	if !ok {
		fmt.Println("Model failed to remove.")
		return nil
	}
	for _, f := range append([]string{}, rev.Files...) {
		if err := cacheView.RemoveFile(repo, rev.CommitHash, f); err != nil {
			fmt.Println("Model failed to remove.")
			return nil
		}
	}
	_ = repoFileStore.Delete(repo, rev.CommitHash)
	fmt.Println("Model remove is done.")
	return nil
}

func modelSearch(ctx *cli.Context) error {
	repo, err := requireRepoArg(ctx)
	if err != nil {
		return err
	}
	file := ctx.String(fileFlag.Name)
	if file == "" {
		return fmt.Errorf("model search is not implemented for whole repos, pass --file")
	}
	revision := ctx.String(revFlag.Name)

	background := context.Background()
	daemon := localDaemonPeer(ctx)
	alive := httpclient.GetAlivePeers(background, daemon)

	var found []peer.Peer
	for _, p := range alive {
		if _, ok := httpclient.HeadFile(background, p, repo, revision, file); ok {
			found = append(found, p)
		}
	}

	if len(found) == 0 {
		fmt.Println("NO peer has target file.")
		return nil
	}
	names := make([]string, 0, len(found))
	for _, p := range found {
		names = append(names, fmt.Sprintf("%s:%d", p.IP, p.Port))
	}
	fmt.Printf("Peers that have target file:\n[%s]\n", strings.Join(names, ","))
	return nil
}

func modelLs(ctx *cli.Context) error {
	modelsRoot, _, _ := cacheRoots()
	cacheView := cache.New(modelsRoot)

	if ctx.NArg() == 1 {
		repo := ctx.Args().Get(0)
		info, ok := cacheView.RepoInfo(repo)
		if !ok || len(info.Revisions) == 0 {
			fmt.Println("No files found.")
			return nil
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"REFS", "COMMIT", "FILE", "SIZE"})
		for _, rev := range info.Revisions {
			commit := rev.CommitHash
			if len(commit) > 8 {
				commit = commit[:8]
			}
			for _, f := range rev.Files {
				fi, ok := cacheView.FileInfo(repo, rev.CommitHash, f)
				size := ""
				if ok {
					size = strconv.FormatInt(fi.Size, 10)
				}
				table.Append([]string{strings.Join(rev.Refs, ","), commit, f, size})
			}
		}
		table.Render()
		return nil
	}

	repos := cacheView.RepoList()
	if len(repos) == 0 {
		fmt.Println("No repos found.")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"REPO ID", "NB FILES", "LOCAL PATH"})
	for _, r := range repos {
		nbFiles := 0
		for _, rev := range r.Revisions {
			nbFiles += len(rev.Files)
		}
		table.Append([]string{r.RepoID, strconv.Itoa(nbFiles), r.Path})
	}
	table.Render()
	return nil
}
