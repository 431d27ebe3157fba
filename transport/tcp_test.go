// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPListenerServesConnections(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- listener.Serve(ctx, func(ctx context.Context, conn net.Conn) {
			defer conn.Close()
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				return
			}
			conn.Write([]byte("echo:" + line))
		})
	}()

	dialer := &TCPDialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, listener.Address())
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply != "echo:hello\n" {
		t.Errorf("reply = %q, want %q", reply, "echo:hello\n")
	}

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve returned %v on cancellation, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestTCPListenerCloseStopsServe(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- listener.Serve(context.Background(), func(ctx context.Context, conn net.Conn) {
			conn.Close()
		})
	}()

	if err := listener.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve returned %v after Close, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	// Close again is a no-op.
	if err := listener.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestTCPDialerFailsFast(t *testing.T) {
	// A listener that is immediately closed leaves a port nothing is
	// listening on.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := probe.Addr().String()
	probe.Close()

	dialer := &TCPDialer{Timeout: time.Second}
	if _, err := dialer.DialContext(context.Background(), address); err == nil {
		t.Error("DialContext succeeded against a closed port")
	}
}
