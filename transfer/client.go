// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/ticket"
)

// dial opens a connection to a peer with the engine's per-attempt
// timeout applied. The returned stop function detaches the
// context-cancellation watcher and must be called before the
// connection is discarded.
func (e *Engine) dial(ctx context.Context, addr string) (net.Conn, func(), error) {
	conn, err := e.dialer.DialContext(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	// Net deadlines are wall-clock absolute, so this one point uses
	// time.Now rather than the injected clock. Retry backoff (the
	// part tests need to control) stays on the injected clock.
	if e.fetchTimeout > 0 {
		conn.SetDeadline(time.Now().Add(e.fetchTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return conn, func() { stop() }, nil
}

// fetchManifest retrieves the remote document listing. Errors from
// the network are transient (retried by the caller); a rejection from
// the peer is permanent.
func (e *Engine) fetchManifest(ctx context.Context, tk ticket.Ticket, out *ManifestResponse) error {
	conn, stop, err := e.dial(ctx, tk.Addr)
	if err != nil {
		return err
	}
	defer stop()
	defer conn.Close()

	request := Request{Action: ActionManifest, DocumentID: tk.DocumentID}
	if err := writeMessage(conn, request); err != nil {
		return fmt.Errorf("sending manifest request: %w", err)
	}
	if err := readMessage(conn, out); err != nil {
		return classifyWire(fmt.Errorf("reading manifest response: %w", err))
	}
	if out.Error != "" {
		return permanent(fmt.Errorf("peer rejected manifest request: %s", out.Error))
	}
	return nil
}

// classifyWire marks protocol violations permanent so the retry loop
// gives up immediately. Everything else stays transient.
func classifyWire(err error) error {
	var oversize *oversizeError
	if errors.As(err, &oversize) {
		return permanent(err)
	}
	return err
}

// fetchBlocks requests the given blocks from a peer and calls receive
// for each payload, in the order the peer sends them. A peer that
// does not have a requested block, or sends a block that was not
// requested, is a permanent failure.
func (e *Engine) fetchBlocks(ctx context.Context, addr string, hashes []blob.Hash, receive func(blob.Hash, []byte) error) error {
	conn, stop, err := e.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer stop()
	defer conn.Close()

	request := Request{Action: ActionBlocks, Hashes: hashes}
	if err := writeMessage(conn, request); err != nil {
		return fmt.Errorf("sending block request: %w", err)
	}

	requested := make(map[blob.Hash]struct{}, len(hashes))
	for _, hash := range hashes {
		requested[hash] = struct{}{}
	}

	for range hashes {
		if err := ctx.Err(); err != nil {
			return err
		}
		descriptor, data, err := readBlockPayload(conn)
		if err != nil {
			return classifyWire(err)
		}
		if _, ok := requested[descriptor.Hash]; !ok {
			return permanent(fmt.Errorf("peer sent unrequested block %s",
				blob.FormatHash(descriptor.Hash)))
		}
		if !descriptor.Found {
			return permanent(fmt.Errorf("peer is missing block %s",
				blob.FormatHash(descriptor.Hash)))
		}
		if err := receive(descriptor.Hash, data); err != nil {
			return err
		}
	}
	return nil
}
