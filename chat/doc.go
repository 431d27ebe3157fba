// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat implements rooms over gossip topics. A room is a topic
// subscription plus local state: an approximate member set fed by
// join/leave notices, and a bounded message history deduplicated by
// message UUID.
//
// The model is deliberately weak: sends are fire-and-forget, history
// is local and bounded, and nothing orders messages across peers.
// What the package does guarantee is that a given message ID enters
// history at most once, and that slow peers degrade by losing
// messages rather than by blocking senders.
package chat
