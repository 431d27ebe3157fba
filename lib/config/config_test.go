// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quicksend.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileMinimal(t *testing.T) {
	path := writeConfig(t, "data_root: /var/lib/quicksend\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.DataRoot != "/var/lib/quicksend" {
		t.Errorf("DataRoot = %q", cfg.DataRoot)
	}
	if cfg.MaxMessageHistory != DefaultMaxMessageHistory {
		t.Errorf("MaxMessageHistory = %d, want default %d",
			cfg.MaxMessageHistory, DefaultMaxMessageHistory)
	}
	if !cfg.FileSharingEnabled() {
		t.Error("file sharing should default to enabled")
	}
}

func TestLoadFileFullSurface(t *testing.T) {
	path := writeConfig(t, `
data_root: /data/qs
download_dir: /data/downloads
listen_addr: ":7465"
user_name: alice
verbose_logging: true
max_message_history: 50
enable_file_sharing: false
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.DownloadDir != "/data/downloads" {
		t.Errorf("DownloadDir = %q", cfg.DownloadDir)
	}
	if cfg.ListenAddr != ":7465" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.UserName != "alice" {
		t.Errorf("UserName = %q", cfg.UserName)
	}
	if !cfg.VerboseLogging {
		t.Error("VerboseLogging should be true")
	}
	if cfg.MaxMessageHistory != 50 {
		t.Errorf("MaxMessageHistory = %d, want 50", cfg.MaxMessageHistory)
	}
	if cfg.FileSharingEnabled() {
		t.Error("file sharing explicitly disabled, FileSharingEnabled() = true")
	}
}

func TestLoadFileMissingDataRoot(t *testing.T) {
	path := writeConfig(t, "download_dir: /tmp/dl\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile without data_root should fail")
	}
}

func TestLoadFileInvalidHistory(t *testing.T) {
	path := writeConfig(t, "data_root: /data\nmax_message_history: -5\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("negative max_message_history should fail validation")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile on a missing path should fail")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	path := writeConfig(t, "data_root: ${HOME}/quicksend\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := filepath.Join(home, "quicksend")
	if cfg.DataRoot != want {
		t.Errorf("DataRoot = %q, want %q", cfg.DataRoot, want)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("QUICKSEND_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load without QUICKSEND_CONFIG should fail")
	}
}
