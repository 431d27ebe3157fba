// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package quicksend is the integrated client: the one API surface
// every front-end consumes.
//
// A Client wires the content store, document manifest, transfer
// engine, peer server, chat engine, and event bus together under a
// single configuration. Adapters (CLI, HTTP, embedding hosts)
// translate between their environment and this surface; they add no
// semantics of their own.
//
// Errors crossing this surface classify into a small taxonomy via
// Classify, so adapters can map failures to exit codes or HTTP
// statuses without string matching.
package quicksend
