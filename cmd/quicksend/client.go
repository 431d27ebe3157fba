// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/quicksend-foundation/quicksend/cmd/quicksend/cli"
	"github.com/quicksend-foundation/quicksend/lib/config"
	"github.com/quicksend-foundation/quicksend/quicksend"
)

// clientFlags carries the flags shared by every command that opens a
// node: where the config lives and how loud the logger is.
type clientFlags struct {
	configPath string
	verbose    bool
}

func (f *clientFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "",
		"path to the quicksend.yaml config file (default: $QUICKSEND_CONFIG)")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
}

// load resolves the configuration from --config or QUICKSEND_CONFIG.
func (f *clientFlags) load() (*config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	return config.Load()
}

// open loads the configuration and opens the local node. The caller
// owns the returned client and must Close it.
func (f *clientFlags) open() (*quicksend.Client, *config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	logger := cli.NewCommandLogger(f.verbose || cfg.VerboseLogging)
	client, err := quicksend.Open(cfg, quicksend.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
