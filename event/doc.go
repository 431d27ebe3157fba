// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package event is the in-process notification bus connecting the
// transfer and chat engines to whatever is watching them: an adapter,
// a CLI, a test. Engines publish; subscribers pick a scope (all
// events, one transfer session, one chat room) and read a channel.
//
// Delivery is best-effort by design. A subscriber that stops reading
// loses its oldest events, never the publisher's liveness.
package event
