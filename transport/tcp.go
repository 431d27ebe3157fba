// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts inbound TCP connections from peers. This is the
// development and same-LAN transport — it requires direct TCP
// reachability between nodes. NAT traversal is a different transport
// behind the same interface.
type TCPListener struct {
	listener net.Listener

	mu     sync.Mutex
	closed bool
}

// NewTCPListener creates a TCP listener on the specified address
// (e.g., ":7891" or "192.168.1.10:7891"). Use ":0" for a random
// available port.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

// Serve accepts connections and dispatches each to handler in its own
// goroutine. Blocks until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context, handler ConnHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			handler(ctx, conn)
		}()
	}
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the TCP listener.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return l.listener.Close()
}

func (l *TCPListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// TCPDialer opens TCP connections to peers.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout — only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
