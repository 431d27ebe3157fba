// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/cmd/quicksend/cli"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/quicksend"
)

func shareCommand() *cli.Command {
	var common clientFlags
	return &cli.Command{
		Name:    "share",
		Summary: "Add a file to the shared document and print its ticket",
		Usage:   "quicksend share <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("share", pflag.ContinueOnError)
			common.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("share takes exactly one file path")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			share, err := client.UploadFile(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s) shared\n", share.Name, humanize.IBytes(uint64(share.Size)))
			fmt.Println(share.Ticket)
			return nil
		},
		Examples: []cli.Example{
			{Command: "quicksend share ./report.pdf"},
		},
	}
}

func fetchCommand() *cli.Command {
	var common clientFlags
	var dir string
	return &cli.Command{
		Name:    "fetch",
		Summary: "Download the files a ticket names",
		Usage:   "quicksend fetch <ticket> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			common.register(flags)
			flags.StringVar(&dir, "dir", "", "destination directory (default: download_dir from config)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("fetch takes exactly one ticket")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			// Redraw a progress line only on a terminal; piped output
			// stays clean.
			var progressDone func()
			if term.IsTerminal(int(os.Stderr.Fd())) {
				progressDone = renderProgress(client)
			}

			paths, err := client.DownloadFiles(ctx, args[0], dir)
			if progressDone != nil {
				progressDone()
			}
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Println(path)
			}
			return nil
		},
		Examples: []cli.Example{
			{Command: "quicksend fetch qs1... --dir ~/Downloads"},
		},
	}
}

// renderProgress subscribes to transfer events and redraws a single
// stderr line as download bytes arrive. The returned function stops the
// renderer and clears the line.
func renderProgress(client *quicksend.Client) func() {
	sub := client.SubscribeEvents(event.ScopeAll())
	done := make(chan struct{})
	go func() {
		defer close(done)
		wrote := false
		for ev := range sub.Events() {
			transfer, ok := ev.(event.TransferEvent)
			if !ok || transfer.Kind != event.DownloadProgress || transfer.Size == 0 {
				continue
			}
			fmt.Fprintf(os.Stderr, "\r%s: %s / %s", transfer.Name,
				humanize.IBytes(uint64(transfer.Offset)), humanize.IBytes(uint64(transfer.Size)))
			wrote = true
		}
		if wrote {
			fmt.Fprint(os.Stderr, "\n")
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

func lsCommand() *cli.Command {
	var common clientFlags
	return &cli.Command{
		Name:    "ls",
		Summary: "List the files in the shared document",
		Usage:   "quicksend ls [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			common.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("ls takes no arguments")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			entries, err := client.ListFiles(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "NAME\tSIZE\tHASH\n")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name,
					humanize.IBytes(uint64(entry.Size)), blob.FormatHash(entry.BlobHash))
			}
			return tw.Flush()
		},
	}
}

func removeCommand() *cli.Command {
	var common clientFlags
	var purge bool
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove a file from the shared document",
		Usage:   "quicksend remove <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			common.register(flags)
			flags.BoolVar(&purge, "purge", false,
				"also delete the stored content (blocks shared with another entry survive)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("remove takes exactly one file name")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signalContext()
			defer stop()

			if purge {
				return client.PurgeFile(ctx, args[0])
			}
			return client.RemoveFile(ctx, args[0])
		},
	}
}

func codeCommand() *cli.Command {
	var common clientFlags
	return &cli.Command{
		Name:    "code",
		Summary: "Print a ticket covering the whole shared document",
		Usage:   "quicksend code [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("code", pflag.ContinueOnError)
			common.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("code takes no arguments")
			}
			client, _, err := common.open()
			if err != nil {
				return err
			}
			defer client.Close()

			share, err := client.GetShareCode()
			if err != nil {
				return err
			}
			fmt.Println(share.Ticket)
			return nil
		},
	}
}
