// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket encodes and decodes share tickets: compact strings
// that carry everything a peer needs to fetch a document or join a
// chat room. A ticket is "qs", a version digit, and a base32-encoded
// CBOR payload. Tickets are opaque to users — they are pasted into a
// CLI flag or a chat message and decoded on the other side.
package ticket
