// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines how peers reach each other: point-to-point
// connections (Dialer/Listener) for file transfers and topic broadcast
// (Broadcaster) for chat gossip. TCP implementations cover direct and
// same-LAN reachability; MemoryHub covers in-process peers. Everything
// above this package is transport-agnostic.
package transport
