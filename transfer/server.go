// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/transport"
)

// Server answers fetch-protocol requests from downloading peers: the
// document listing and raw block payloads. It serves read-only views
// of the local content store and manifest; nothing a peer sends can
// mutate local state.
type Server struct {
	store    *blob.Store
	manifest *manifest.Manifest
	logger   *slog.Logger
}

// ServerConfig holds the collaborators for a Server.
type ServerConfig struct {
	// Store is the local content store. Required.
	Store *blob.Store

	// Manifest is the document manifest being served. Required.
	Manifest *manifest.Manifest

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// NewServer validates the configuration and creates a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("transfer: ServerConfig.Store is required")
	}
	if cfg.Manifest == nil {
		return nil, fmt.Errorf("transfer: ServerConfig.Manifest is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:    cfg.Store,
		manifest: cfg.Manifest,
		logger:   cfg.Logger,
	}, nil
}

// Serve accepts connections from the listener and answers requests
// until ctx is cancelled or the listener is closed.
func (s *Server) Serve(ctx context.Context, listener transport.Listener) error {
	s.logger.Info("transfer server listening", "addr", listener.Address())
	return listener.Serve(ctx, s.Handle)
}

// Handle answers requests on one peer connection. It satisfies
// transport.ConnHandler. Multiple sequential requests per connection
// are supported; the loop ends when the peer closes its side.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	remote := conn.RemoteAddr().String()
	for {
		var request Request
		if err := readMessage(conn, &request); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("dropping peer connection", "peer", remote, "error", err)
			}
			return
		}

		var err error
		switch request.Action {
		case ActionManifest:
			err = s.serveManifest(ctx, conn, request)
		case ActionBlocks:
			err = s.serveBlocks(ctx, conn, request)
		default:
			s.logger.Debug("unknown request action", "peer", remote, "action", request.Action)
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("request failed", "peer", remote, "action", request.Action, "error", err)
			}
			return
		}
	}
}

// serveManifest sends the document listing with each entry's block
// layout.
func (s *Server) serveManifest(ctx context.Context, conn net.Conn, request Request) error {
	documentID := s.manifest.DocumentID()
	if request.DocumentID != documentID {
		// The ticket names a document this node does not have.
		return writeMessage(conn, ManifestResponse{
			DocumentID: documentID,
			Error:      "unknown document",
		})
	}

	entries, err := s.manifest.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}

	response := ManifestResponse{DocumentID: documentID}
	for _, entry := range entries {
		recipe, err := s.store.Recipe(entry.BlobHash)
		if err != nil {
			// Entry whose blob is damaged or missing: skip it
			// rather than fail the whole listing.
			s.logger.Warn("skipping entry with unreadable recipe",
				"name", entry.Name, "error", err)
			continue
		}
		info := FileInfo{
			Name:     entry.Name,
			FileHash: entry.BlobHash,
			Size:     entry.Size,
			Blocks:   make([]BlockInfo, len(recipe.Blocks)),
		}
		for i, ref := range recipe.Blocks {
			info.Blocks[i] = BlockInfo{Hash: ref.Hash, Size: ref.Size}
		}
		response.Entries = append(response.Entries, info)
	}
	return writeMessage(conn, response)
}

// serveBlocks streams the requested block payloads, one descriptor
// and payload per requested hash, in request order.
func (s *Server) serveBlocks(ctx context.Context, conn net.Conn, request Request) error {
	for _, hash := range request.Hashes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := s.store.GetBlock(hash)
		if err != nil {
			s.logger.Debug("requested block unavailable",
				"hash", blob.FormatHash(hash), "error", err)
			descriptor := BlockDescriptor{Hash: hash, Found: false}
			if err := writeMessage(conn, descriptor); err != nil {
				return err
			}
			continue
		}
		if err := writeBlockPayload(conn, hash, data); err != nil {
			return err
		}
	}
	return nil
}
