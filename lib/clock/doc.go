// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// [Real] returns a Clock backed by the standard time package. [Fake]
// returns a FakeClock whose time advances only when the test calls
// Advance, firing pending After and Sleep waiters in deadline order.
//
// The transfer engine's retry backoff is the main consumer: tests
// drive each backoff interval with FakeClock.Advance instead of
// sleeping through real seconds.
package clock
