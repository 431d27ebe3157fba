// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob implements Quicksend's content-addressed store.
//
// Content is split into content-defined blocks with a GearHash
// chunker, each block hashed with a domain-separated BLAKE3 keyed
// hash, compressed, and written to a sharded directory under the data
// root. A CBOR recipe maps a file hash (the content identity, derived
// from the Merkle root over block hashes) to its ordered block list.
//
// The store is block-granular on purpose: the transfer engine asks a
// remote peer only for the blocks it does not already hold, which
// makes downloads resumable by content rather than by byte offset and
// deduplicates shared blocks across files.
//
// [Store.Put] is idempotent: identical bytes always produce the same
// file hash and blocks already on disk are never rewritten. Every
// read path re-hashes what it loads — a block whose bytes do not hash
// to the requested value is an integrity error, never silently
// accepted.
package blob
