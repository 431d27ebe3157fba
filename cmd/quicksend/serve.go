// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quicksend-foundation/quicksend/adapter/httpadapter"
	"github.com/quicksend-foundation/quicksend/cmd/quicksend/cli"
)

func serveCommand() *cli.Command {
	var common clientFlags
	var addr string
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the HTTP API over the local node",
		Usage:   "quicksend serve [flags]",
		Description: `Run the JSON HTTP API: file sharing, downloads, chat rooms, and a
server-sent event stream under /api. The node's peer server keeps
serving block fetches alongside.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			common.register(flags)
			flags.StringVar(&addr, "addr", ":8080", "HTTP listen address")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("serve takes no arguments")
			}
			client, cfg, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			logger := cli.NewCommandLogger(common.verbose || cfg.VerboseLogging)
			server := httpadapter.New(client, logger)
			logger.Info("http api listening", "addr", addr, "peer_addr", client.Addr())
			return server.ListenAndServe(ctx, addr)
		},
		Examples: []cli.Example{
			{Command: "quicksend serve --addr :8080"},
		},
	}
}
