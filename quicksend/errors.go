// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package quicksend

import (
	"context"
	"errors"
	"io/fs"
	"net"

	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/ticket"
	"github.com/quicksend-foundation/quicksend/transfer"
)

// ErrConfig marks invalid configuration. Config errors are fatal at
// startup: nothing retries them and no client is returned.
var ErrConfig = errors.New("invalid configuration")

// Code classifies an error for adapters and front-ends that need a
// stable identifier rather than prose: exit codes, HTTP statuses,
// UI error categories.
type Code string

const (
	// CodeTicketParse: malformed or unsupported ticket string.
	CodeTicketParse Code = "ticket_parse"

	// CodeFileNotFound: the named file or path does not exist.
	CodeFileNotFound Code = "file_not_found"

	// CodeDuplicateFileName: the manifest already has this name.
	CodeDuplicateFileName Code = "duplicate_file_name"

	// CodeDownloadDirNotFound: the download destination directory
	// does not exist.
	CodeDownloadDirNotFound Code = "download_dir_not_found"

	// CodeNetwork: transient network failure. Retried internally up
	// to a bounded attempt count before it is surfaced.
	CodeNetwork Code = "network"

	// CodeConfig: invalid configuration, fatal at startup.
	CodeConfig Code = "config"

	// CodeOther: everything unclassified.
	CodeOther Code = "other"
)

// Classify maps an error to its taxonomy code. Wrapped errors are
// unwrapped as needed; nil maps to the empty code.
func Classify(err error) Code {
	if err == nil {
		return ""
	}

	var parseErr *ticket.ParseError
	var netErr net.Error

	switch {
	case errors.As(err, &parseErr):
		return CodeTicketParse
	case errors.Is(err, manifest.ErrDuplicateFileName):
		return CodeDuplicateFileName
	case errors.Is(err, transfer.ErrDownloadDirNotFound):
		return CodeDownloadDirNotFound
	case errors.Is(err, manifest.ErrEntryNotFound),
		errors.Is(err, fs.ErrNotExist):
		return CodeFileNotFound
	case errors.Is(err, ErrConfig):
		return CodeConfig
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return CodeNetwork
	default:
		return CodeOther
	}
}
