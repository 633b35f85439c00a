// Command hfmc is the client frontend: daemon lifecycle control, peer
// registry management, and model artifact commands.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/hfmc/hfmc-go/internal/config"
	"github.com/hfmc/hfmc-go/internal/log"
)

var portFlag = cli.IntFlag{
	Name:  "port",
	Value: config.DefaultDaemonPort,
	Usage: "daemon port",
}

func main() {
	app := cli.NewApp()
	app.Name = "hfmc"
	app.Usage = "peer-to-peer model artifact accelerator"
	app.Flags = []cli.Flag{portFlag}
	app.Commands = []cli.Command{
		daemonCommand,
		peerCommand,
		modelCommand,
		confCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Error("hfmc: command failed", "err", err)
		os.Exit(1)
	}
}
