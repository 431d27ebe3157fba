// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"

	"github.com/google/uuid"
)

// ConnHandler processes one inbound peer connection. The handler owns
// the connection and must close it. ctx is cancelled when the
// listener shuts down.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Listener accepts inbound connections from peers. The transfer
// server creates a Listener and serves the fetch protocol on every
// accepted connection.
type Listener interface {
	// Serve starts accepting connections and dispatches each to
	// handler in its own goroutine. Blocks until ctx is cancelled or
	// Close is called. Returns nil on clean shutdown.
	Serve(ctx context.Context, handler ConnHandler) error

	// Address returns the dialable address to embed in share
	// tickets. The format is transport-specific (e.g.,
	// "192.168.1.10:7891" for TCP).
	Address() string

	// Close shuts down the listener. Subsequent calls to Serve
	// return immediately.
	Close() error
}

// Dialer opens connections to peers. The transfer engine uses a
// Dialer to reach the address a ticket names.
type Dialer interface {
	// DialContext opens a connection to a peer at the given address.
	// The address format matches what the peer's Listener.Address()
	// returns.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Broadcaster is the gossip primitive chat rooms are built on: a
// topic is a named channel any number of peers subscribe to, and
// every broadcast reaches every other subscriber that is keeping up.
// Delivery is best-effort with no ordering guarantee across peers.
type Broadcaster interface {
	// Subscribe joins a topic. The caller must Close the
	// subscription when leaving the topic.
	Subscribe(topicID uuid.UUID) (TopicSub, error)
}

// TopicSub is one peer's membership in a gossip topic.
type TopicSub interface {
	// Broadcast sends a payload to every other subscriber of the
	// topic. The sender does not receive its own broadcasts.
	Broadcast(payload []byte) error

	// Messages returns the channel inbound payloads arrive on. The
	// channel is closed when the subscription is closed.
	Messages() <-chan []byte

	// Close leaves the topic. Safe to call more than once.
	Close() error
}
