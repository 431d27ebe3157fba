// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Quicksend packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls. It is the intended way to consume
// event bus subscriptions in tests without risking an indefinite hang.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Quicksend-internal dependencies.
package testutil
