// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest maintains the document manifest: the persistent,
// SQLite-backed map from shared file names to content store blob
// hashes. The manifest defines what a node offers to peers — a blob
// without a manifest entry is invisible, and removing an entry is how
// sharing stops.
//
// Each manifest carries a document UUID minted at first open. Share
// tickets embed the UUID so both sides of a transfer agree on which
// document they are talking about.
package manifest
