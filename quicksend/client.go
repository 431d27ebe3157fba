// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package quicksend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/chat"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/lib/clock"
	"github.com/quicksend-foundation/quicksend/lib/config"
	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/transfer"
	"github.com/quicksend-foundation/quicksend/transport"
)

// Option configures a Client beyond what the config file carries:
// collaborators that only hosts and tests inject.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	broadcaster transport.Broadcaster
	dialer      transport.Dialer
	clock       clock.Clock
}

// WithLogger sets the logger for all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBroadcaster sets the gossip implementation chat rooms run on.
// Defaults to an in-process MemoryHub, which connects rooms within
// one process only.
func WithBroadcaster(b transport.Broadcaster) Option {
	return func(o *options) { o.broadcaster = b }
}

// WithDialer sets the dialer used to reach remote peers. Defaults to
// plain TCP.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock sets the clock for timestamps and retry backoff.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Client is the integrated core: content store, manifest, transfer
// engine and peer server, chat engine, and event bus, wired together
// under one configuration. Every front-end (CLI, HTTP adapter,
// embedding host) talks to this one surface.
//
// Client is safe for concurrent use.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *blob.Store
	manifest  *manifest.Manifest
	bus       *event.Bus
	transfers *transfer.Engine
	chats     *chat.Engine

	listener transport.Listener
	addr     string
	cancel   context.CancelFunc
	served   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open validates the configuration, creates the data root layout,
// opens the manifest, starts the peer server when listen_addr is set,
// and returns a ready Client. The caller must Close it.
func Open(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.broadcaster == nil {
		o.broadcaster = transport.NewMemoryHub()
	}
	if o.dialer == nil {
		o.dialer = &transport.TCPDialer{}
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data root: %v", ErrConfig, err)
	}

	store, err := blob.NewStore(filepath.Join(cfg.DataRoot, "blob"))
	if err != nil {
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	m, err := manifest.Open(manifest.Config{
		Path:   filepath.Join(cfg.DataRoot, "manifest.db"),
		Blobs:  store,
		Logger: o.logger,
		Clock:  o.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}

	bus := event.NewBus(event.WithLogger(o.logger))

	client := &Client{
		cfg:      cfg,
		logger:   o.logger,
		store:    store,
		manifest: m,
		bus:      bus,
		served:   make(chan struct{}),
	}

	if cfg.ListenAddr != "" {
		listener, err := transport.NewTCPListener(cfg.ListenAddr)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("%w: listening on %s: %v", ErrConfig, cfg.ListenAddr, err)
		}
		server, err := transfer.NewServer(transfer.ServerConfig{
			Store:    store,
			Manifest: m,
			Logger:   o.logger,
		})
		if err != nil {
			listener.Close()
			m.Close()
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		client.listener = listener
		client.addr = listener.Address()
		client.cancel = cancel
		go func() {
			defer close(client.served)
			if err := server.Serve(ctx, listener); err != nil {
				o.logger.Error("peer server stopped", "error", err)
			}
		}()
	} else {
		close(client.served)
	}

	client.transfers, err = transfer.NewEngine(transfer.Config{
		Store:    store,
		Manifest: m,
		Bus:      bus,
		Dialer:   o.dialer,
		Addr:     client.addr,
		Logger:   o.logger,
		Clock:    o.clock,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	userName := cfg.UserName
	if userName == "" {
		userName = "user-" + uuid.NewString()[:8]
	}
	client.chats, err = chat.NewEngine(chat.Config{
		Broadcaster: o.broadcaster,
		Bus:         bus,
		UserName:    userName,
		MaxHistory:  cfg.MaxMessageHistory,
		FileSharing: cfg.FileSharingEnabled(),
		Logger:      o.logger,
		Clock:       o.clock,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	o.logger.Info("quicksend client ready",
		"data_root", cfg.DataRoot,
		"document_id", m.DocumentID(),
		"listen_addr", client.addr,
		"user", userName)
	return client, nil
}

// Close shuts down the chat engine, the peer server, and the
// manifest. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.chats != nil {
			c.closeErr = c.chats.Close()
		}
		if c.cancel != nil {
			c.cancel()
		}
		if c.listener != nil {
			c.listener.Close()
		}
		<-c.served
		if err := c.manifest.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// Addr returns the dialable address of this node's peer server, or
// empty when listen_addr is not configured.
func (c *Client) Addr() string {
	return c.addr
}

// DocumentID returns the stable identity of this node's document.
func (c *Client) DocumentID() uuid.UUID {
	return c.manifest.DocumentID()
}

// --- Transfer surface ---

// UploadFile shares a local file: chunks it into the content store,
// registers its base name in the manifest, and returns a ticket.
// Requires listen_addr, since the minted ticket must name a dialable
// peer.
func (c *Client) UploadFile(ctx context.Context, path string) (*transfer.ShareResponse, error) {
	if c.addr == "" {
		return nil, fmt.Errorf("%w: listen_addr must be set to share files", ErrConfig)
	}
	return c.transfers.Upload(ctx, path)
}

// DownloadFiles fetches every file of the ticket's document into
// destDir. An empty destDir falls back to the configured
// download_dir.
func (c *Client) DownloadFiles(ctx context.Context, ticketString, destDir string) ([]string, error) {
	if destDir == "" {
		destDir = c.cfg.DownloadDir
	}
	if destDir == "" {
		return nil, fmt.Errorf("%w: no destination given and download_dir is not configured", ErrConfig)
	}
	return c.transfers.Download(ctx, ticketString, destDir)
}

// RemoveFile detaches the named entry from the manifest. The stored
// blocks are retained.
func (c *Client) RemoveFile(ctx context.Context, name string) error {
	return c.transfers.Remove(ctx, name)
}

// PurgeFile detaches the named entry and deletes its blob content.
// Blocks shared with another entry survive.
func (c *Client) PurgeFile(ctx context.Context, name string) error {
	return c.transfers.Purge(ctx, name)
}

// GetShareCode mints a ticket for the whole document.
func (c *Client) GetShareCode() (*transfer.ShareResponse, error) {
	if c.addr == "" {
		return nil, fmt.Errorf("%w: listen_addr must be set to share files", ErrConfig)
	}
	return c.transfers.GetShareCode()
}

// ListFiles returns the manifest entries in name order.
func (c *Client) ListFiles(ctx context.Context) ([]manifest.Entry, error) {
	return c.manifest.ListEntries(ctx)
}

// Sessions returns snapshots of all transfer sessions, newest first.
func (c *Client) Sessions() []transfer.Session {
	return c.transfers.Sessions()
}

// Session returns a snapshot of one transfer session.
func (c *Client) Session(id uuid.UUID) (transfer.Session, bool) {
	return c.transfers.Session(id)
}

// ReleaseSession drops a terminal session from the registry.
func (c *Client) ReleaseSession(id uuid.UUID) bool {
	return c.transfers.ReleaseSession(id)
}

// --- Chat surface ---

// CreateChatRoom creates a room on a fresh topic and joins it.
func (c *Client) CreateChatRoom(name, description string) (*chat.Room, error) {
	return c.chats.CreateRoom(name, description)
}

// JoinChatRoom joins a room by topic UUID or by room ticket string.
func (c *Client) JoinChatRoom(ref string) (*chat.Room, error) {
	if topicID, err := uuid.Parse(ref); err == nil {
		return c.chats.JoinRoom(topicID)
	}
	return c.chats.JoinRoomTicket(ref)
}

// LeaveChatRoom leaves the room: best-effort leave notice, then
// unsubscribe. The room is terminal afterwards.
func (c *Client) LeaveChatRoom(roomID uuid.UUID) error {
	return c.chats.LeaveRoom(roomID)
}

// RoomTicket mints an invitation string for a joined room.
func (c *Client) RoomTicket(roomID uuid.UUID) (string, error) {
	addr := c.addr
	if addr == "" {
		// Chat over an in-process hub has no dialable address, but
		// the ticket envelope requires one.
		addr = "local"
	}
	return c.chats.RoomTicket(roomID, addr)
}

// SendChatMessage broadcasts a message to the room and appends it to
// local history.
func (c *Client) SendChatMessage(roomID uuid.UUID, content string, messageType chat.MessageType) (chat.Message, error) {
	return c.chats.SendMessage(roomID, content, messageType)
}

// ShareFileToRoom sends a file-share message carrying a ticket for
// this node's document. The name must be a manifest entry.
func (c *Client) ShareFileToRoom(ctx context.Context, roomID uuid.UUID, name string) (chat.Message, error) {
	_, exists, err := c.manifest.GetEntry(ctx, name)
	if err != nil {
		return chat.Message{}, err
	}
	if !exists {
		return chat.Message{}, fmt.Errorf("%s: %w", name, manifest.ErrEntryNotFound)
	}
	share, err := c.GetShareCode()
	if err != nil {
		return chat.Message{}, err
	}
	return c.chats.ShareFile(roomID, name, share.Ticket)
}

// ChatRoom returns a joined room by ID.
func (c *Client) ChatRoom(roomID uuid.UUID) (*chat.Room, bool) {
	return c.chats.Room(roomID)
}

// ChatRooms returns all rooms, including left ones.
func (c *Client) ChatRooms() []*chat.Room {
	return c.chats.Rooms()
}

// --- Events ---

// SubscribeEvents subscribes to the event bus. The zero scope
// receives everything; scoped subscriptions filter by session or
// room ID. Re-subscribing restarts the stream.
func (c *Client) SubscribeEvents(scope event.Scope) *event.Subscription {
	return c.bus.Subscribe(scope)
}
