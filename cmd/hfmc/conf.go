package main

import (
	"fmt"

	"gopkg.in/urfave/cli.v1"

	"github.com/hfmc/hfmc-go/internal/config"
)

var confCommand = cli.Command{
	Name:  "conf",
	Usage: "view or change persisted configuration",
	Subcommands: []cli.Command{
		confShowCommand,
		confCacheCommand,
		confPortCommand,
	},
}

var confShowCommand = cli.Command{
	Name:   "show",
	Usage:  "print the current configuration",
	Action: confShow,
}

var confCacheCommand = cli.Command{
	Name:      "cache",
	Usage:     "get or set the cache root directory",
	ArgsUsage: "[new-path]",
	Action:    confCache,
	Subcommands: []cli.Command{
		{
			Name:   "reset",
			Usage:  "restore the default cache root",
			Action: confCacheReset,
		},
	},
}

var confPortCommand = cli.Command{
	Name:      "port",
	Usage:     "get or set the daemon port",
	ArgsUsage: "[new-port]",
	Action:    confPort,
	Subcommands: []cli.Command{
		{
			Name:   "reset",
			Usage:  "restore the default daemon port",
			Action: confPortReset,
		},
	},
}

func confShow(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Printf("cache_dir = %s\n", cfg.CacheDir)
	fmt.Printf("daemon_port = %d\n", cfg.DaemonPort)
	fmt.Printf("mirrors = %v\n", cfg.Mirrors)
	fmt.Printf("peers = %d configured\n", len(cfg.Peers))
	return nil
}

func confCache(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		fmt.Println(cfg.CacheDir)
		return nil
	}
	cfg.CacheDir = ctx.Args().Get(0)
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("cache_dir set to %s\n", cfg.CacheDir)
	return nil
}

func confCacheReset(ctx *cli.Context) error {
	restored, err := config.ResetCacheDir()
	if err != nil {
		return err
	}
	fmt.Printf("cache_dir reset to %s\n", restored)
	return nil
}

func confPortReset(ctx *cli.Context) error {
	restored, err := config.ResetDaemonPort()
	if err != nil {
		return err
	}
	fmt.Printf("daemon_port reset to %d\n", restored)
	return nil
}

func confPort(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		fmt.Println(cfg.DaemonPort)
		return nil
	}
	var newPort int
	if _, err := fmt.Sscanf(ctx.Args().Get(0), "%d", &newPort); err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	cfg.DaemonPort = newPort
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("daemon_port set to %d\n", cfg.DaemonPort)
	return nil
}
