// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer orchestrates file transfers between peers.
//
// The Engine owns the upload path (chunk a local file into the
// content store, register it in the manifest, mint a share ticket)
// and the download path (decode a ticket, fetch the remote document
// listing, pull only the blocks missing locally, verify every block
// hash, reassemble into the destination directory). The Server
// answers the fetch protocol for remote downloaders.
//
// Every transfer runs under a Session with a queued → running →
// done|error state machine; progress is reported on the event bus.
// The wire protocol is length-prefixed CBOR messages with raw block
// payloads interleaved, served over the transport package's
// connections.
package transfer
