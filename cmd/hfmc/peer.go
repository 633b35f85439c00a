package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/config"
	"github.com/hfmc/hfmc-go/internal/httpclient"
	"github.com/hfmc/hfmc-go/internal/peer"
)

var peerCommand = cli.Command{
	Name:  "peer",
	Usage: "manage the configured peer set",
	Subcommands: []cli.Command{
		peerAddCommand,
		peerRmCommand,
		peerLsCommand,
	},
}

var peerAddCommand = cli.Command{
	Name:      "add",
	Usage:     "add a peer",
	ArgsUsage: "<ip> <port>",
	Action:    peerAdd,
}

var peerRmCommand = cli.Command{
	Name:      "rm",
	Usage:     "remove a peer",
	ArgsUsage: "<ip> <port>",
	Action:    peerRm,
}

var peerLsCommand = cli.Command{
	Name:   "ls",
	Usage:  "list configured peers and their liveness",
	Action: peerLs,
}

func parsePeerArgs(ctx *cli.Context) (string, int, error) {
	if ctx.NArg() != 2 {
		return "", 0, fmt.Errorf("usage: hfmc peer %s <ip> <port>", ctx.Command.Name)
	}
	port, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q: %w", ctx.Args().Get(1), apperr.ErrBadRequest)
	}
	return ctx.Args().Get(0), port, nil
}

func notifyLocalDaemon(ctx *cli.Context) {
	self := peer.Peer{IP: "127.0.0.1", Port: ctx.GlobalInt(portFlag.Name)}
	httpclient.NotifyPeersChange(context.Background(), self)
}

func peerAdd(ctx *cli.Context) error {
	ip, port, err := parsePeerArgs(ctx)
	if err != nil {
		return err
	}
	if err := config.AddPeer(ip, port); err != nil {
		return err
	}
	notifyLocalDaemon(ctx)
	fmt.Printf("Peer %s:%d added.\n", ip, port)
	return nil
}

func peerRm(ctx *cli.Context) error {
	ip, port, err := parsePeerArgs(ctx)
	if err != nil {
		return err
	}
	if err := config.RemovePeer(ip, port); err != nil {
		return err
	}
	notifyLocalDaemon(ctx)
	fmt.Printf("Peer %s:%d removed.\n", ip, port)
	return nil
}

func peerLs(ctx *cli.Context) error {
	reader := config.NewReader()
	configured := reader.GetPeers()

	self := peer.Peer{IP: "127.0.0.1", Port: ctx.GlobalInt(portFlag.Name)}
	alive := httpclient.GetAlivePeers(context.Background(), self)
	aliveSet := make(map[peer.Key]bool, len(alive))
	for _, p := range alive {
		aliveSet[p.Key()] = true
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"IP", "Port", "Alive"})
	for _, p := range configured {
		status := ""
		if aliveSet[p.Key()] {
			status = "alive"
		}
		table.Append([]string{p.IP, strconv.Itoa(p.Port), status})
	}
	table.Render()
	return nil
}
