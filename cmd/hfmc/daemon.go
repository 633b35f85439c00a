package main

import (
	"context"
	"fmt"

	"gopkg.in/urfave/cli.v1"

	"github.com/hfmc/hfmc-go/internal/daemonctl"
)

var daemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "control the background daemon",
	Subcommands: []cli.Command{
		daemonStartCommand,
		daemonStopCommand,
		daemonStatusCommand,
	},
}

var daemonStartCommand = cli.Command{
	Name:   "start",
	Usage:  "start the daemon, detached",
	Action: daemonStart,
}

var daemonStopCommand = cli.Command{
	Name:   "stop",
	Usage:  "stop the running daemon",
	Action: daemonStop,
}

var daemonStatusCommand = cli.Command{
	Name:   "status",
	Usage:  "report whether the daemon is running",
	Action: daemonStatus,
}

func daemonStart(ctx *cli.Context) error {
	port := ctx.GlobalInt(portFlag.Name)
	if err := daemonctl.Start(context.Background(), port); err != nil {
		return fmt.Errorf("daemon failed to start: %w", err)
	}
	fmt.Println("Daemon started.")
	return nil
}

func daemonStop(ctx *cli.Context) error {
	port := ctx.GlobalInt(portFlag.Name)
	if err := daemonctl.Stop(context.Background(), port); err != nil {
		return fmt.Errorf("daemon failed to stop: %w", err)
	}
	fmt.Println("Daemon stopped.")
	return nil
}

func daemonStatus(ctx *cli.Context) error {
	port := ctx.GlobalInt(portFlag.Name)
	st := daemonctl.GetStatus(context.Background(), port)
	if st.Running {
		fmt.Println("Daemon is running.")
	} else {
		fmt.Println("Daemon is NOT running.")
	}
	return nil
}
