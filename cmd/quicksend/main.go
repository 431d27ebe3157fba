// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// The quicksend binary is the command-line surface for peer-to-peer
// file sharing and chat: share and fetch files by ticket, manage the
// local manifest, run the HTTP API, and join chat rooms.
package main

import (
	"fmt"
	"os"

	"github.com/quicksend-foundation/quicksend/cmd/quicksend/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

func root() *cli.Command {
	return &cli.Command{
		Name: "quicksend",
		Description: `Quicksend: peer-to-peer file sharing and chat.

Files are chunked into content-addressed blocks and shared by ticket:
a short code that names the document, the peer address, and the
capability. Fetching verifies every block against its hash and resumes
from whatever blocks are already present locally.`,
		Subcommands: []*cli.Command{
			shareCommand(),
			fetchCommand(),
			lsCommand(),
			removeCommand(),
			codeCommand(),
			serveCommand(),
			chatCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Share a file and print its ticket",
				Command:     "quicksend share ./report.pdf",
			},
			{
				Description: "Fetch everything a ticket names into a directory",
				Command:     "quicksend fetch qs1... --dir ~/Downloads",
			},
			{
				Description: "Run the HTTP API on port 8080",
				Command:     "quicksend serve --addr :8080",
			},
			{
				Description: "Create a chat room and talk",
				Command:     "quicksend chat create ops",
			},
		},
	}
}
