// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size SQLite connection pool with
// Quicksend-standard pragmas (WAL journaling, normal synchronous mode,
// a 5-second busy timeout).
//
// The document manifest is the only consumer today: it keeps the
// name→blob index in a single database under the data root. The pool
// exists so that manifest reads can proceed concurrently while the
// transfer engine holds the single writer role.
package sqlitepool
