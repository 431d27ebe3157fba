// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	ran := false
	root := &Command{
		Name: "quicksend",
		Subcommands: []*Command{
			{
				Name: "share",
				Run: func(args []string) error {
					ran = true
					if len(args) != 1 || args[0] != "file.txt" {
						t.Errorf("args = %v, want [file.txt]", args)
					}
					return nil
				},
			},
		},
	}
	if err := root.Execute([]string{"share", "file.txt"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !ran {
		t.Fatal("subcommand did not run")
	}
}

func TestExecuteSuggestsClosestCommand(t *testing.T) {
	root := &Command{
		Name: "quicksend",
		Subcommands: []*Command{
			{Name: "share", Run: func([]string) error { return nil }},
			{Name: "fetch", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"shrae"})
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "share"`) {
		t.Fatalf("error is missing the suggestion: %v", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var dir string
	command := &Command{
		Name: "fetch",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			flags.StringVar(&dir, "dir", "", "destination directory")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 || args[0] != "qs1abc" {
				t.Errorf("args = %v, want [qs1abc]", args)
			}
			return nil
		},
	}
	if err := command.Execute([]string{"--dir", "/tmp/out", "qs1abc"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if dir != "/tmp/out" {
		t.Fatalf("dir = %q, want /tmp/out", dir)
	}
}

func TestExecuteSuggestsClosestFlag(t *testing.T) {
	command := &Command{
		Name: "fetch",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			flags.String("dir", "", "destination directory")
			return flags
		},
		Run: func([]string) error { return nil },
	}
	err := command.Execute([]string{"--dri", "/tmp/out"})
	if err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
	if !strings.Contains(err.Error(), "--dir") {
		t.Fatalf("error is missing the flag suggestion: %v", err)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"share", "share", 0},
		{"shrae", "share", 2},
		{"fetch", "share", 5},
		{"ls", "list", 2},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
