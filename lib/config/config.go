// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Quicksend.
//
// Configuration is loaded from a single YAML file specified by:
//   - QUICKSEND_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Environment variables
// do not override config values — this ensures deterministic,
// auditable configuration with no hidden overrides. The only expansion
// performed is ${HOME} and similar path variables for portability.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxMessageHistory is the bounded chat history size per room
// when max_message_history is not set.
const DefaultMaxMessageHistory = 100

// Config is the master configuration for Quicksend.
type Config struct {
	// DataRoot is the storage location for the content store and the
	// document manifest. Required.
	DataRoot string `yaml:"data_root"`

	// DownloadDir is the default destination directory for downloads
	// when the caller does not specify one. Optional — callers that
	// always pass a destination never need it.
	DownloadDir string `yaml:"download_dir"`

	// ListenAddr is the TCP address the peer server listens on for
	// inbound fetch requests (e.g. ":7465"). ":0" picks a random
	// port. Empty disables the peer server (download-only node).
	ListenAddr string `yaml:"listen_addr"`

	// UserName is the display name used in chat rooms. When empty, a
	// generated "user-<8 hex>" name is used.
	UserName string `yaml:"user_name"`

	// VerboseLogging raises the log level to Debug.
	VerboseLogging bool `yaml:"verbose_logging"`

	// MaxMessageHistory bounds the per-room chat history. Oldest
	// messages are evicted first. Zero means DefaultMaxMessageHistory.
	MaxMessageHistory int `yaml:"max_message_history"`

	// EnableFileSharing controls whether file-share messages may be
	// sent to chat rooms. Defaults to true; set `enable_file_sharing:
	// false` explicitly to disable.
	EnableFileSharing *bool `yaml:"enable_file_sharing"`
}

// Default returns a Config with all defaults applied and no data root.
// The result does not validate until DataRoot is set.
func Default() *Config {
	enabled := true
	return &Config{
		MaxMessageHistory: DefaultMaxMessageHistory,
		EnableFileSharing: &enabled,
	}
}

// Load loads configuration from the QUICKSEND_CONFIG environment
// variable. Fails if the variable is not set — there is no implicit
// default location.
func Load() (*Config, error) {
	configPath := os.Getenv("QUICKSEND_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("QUICKSEND_CONFIG environment variable not set; " +
			"set it to the path of your quicksend.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies
// defaults for unset fields, expands path variables, and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable. DataRoot is the
// only required field; bounds are checked on the rest.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if c.MaxMessageHistory < 1 {
		return fmt.Errorf("max_message_history must be at least 1, got %d", c.MaxMessageHistory)
	}
	return nil
}

// FileSharingEnabled reports whether file-share chat messages are
// allowed. Nil (unset) means enabled.
func (c *Config) FileSharingEnabled() bool {
	return c.EnableFileSharing == nil || *c.EnableFileSharing
}

// applyDefaults fills zero-valued fields whose absence has a defined
// default. A YAML file that sets max_message_history: 0 is treated the
// same as omitting it.
func (c *Config) applyDefaults() {
	if c.MaxMessageHistory == 0 {
		c.MaxMessageHistory = DefaultMaxMessageHistory
	}
}

// expandVariables expands ${HOME} and $HOME in path fields. Other
// variables are left untouched — the config file is the source of
// truth, not the process environment.
func (c *Config) expandVariables() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(path string) string {
		path = strings.ReplaceAll(path, "${HOME}", home)
		path = strings.ReplaceAll(path, "$HOME", home)
		return filepath.Clean(path)
	}
	if c.DataRoot != "" {
		c.DataRoot = expand(c.DataRoot)
	}
	if c.DownloadDir != "" {
		c.DownloadDir = expand(c.DownloadDir)
	}
}
