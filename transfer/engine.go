// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/lib/clock"
	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/ticket"
	"github.com/quicksend-foundation/quicksend/transport"
)

// ErrDownloadDirNotFound is returned by Download when the destination
// directory does not exist. The engine never creates it: downloading
// into a mistyped path should fail, not silently mkdir.
var ErrDownloadDirNotFound = errors.New("download directory does not exist")

// Retry defaults for transient network failures.
const (
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultMaxAttempts    = 5

	// DefaultFetchTimeout bounds each individual network attempt.
	DefaultFetchTimeout = 30 * time.Second
)

// ShareResponse is the result of a successful upload or share-code
// request.
type ShareResponse struct {
	// Ticket is the share code to hand to the downloading peer.
	Ticket string `json:"ticket"`

	// Name and Size describe the uploaded file. Empty for
	// GetShareCode, which covers the whole document.
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Config holds the collaborators and tuning knobs for an Engine.
type Config struct {
	// Store is the local content store. Required.
	Store *blob.Store

	// Manifest is the document manifest for this data root. Required.
	Manifest *manifest.Manifest

	// Bus receives transfer progress events. Required.
	Bus *event.Bus

	// Dialer opens connections to remote peers for downloads.
	// Required.
	Dialer transport.Dialer

	// Addr is the dialable address of this node's transfer server,
	// embedded in minted tickets. Required for Upload and
	// GetShareCode.
	Addr string

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Clock drives retry backoff. If nil, the real clock is used.
	Clock clock.Clock

	// RetryBaseDelay is the first backoff delay for transient
	// network failures; each subsequent attempt doubles it. Defaults
	// to DefaultRetryBaseDelay.
	RetryBaseDelay time.Duration

	// MaxAttempts bounds retries per network operation. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// FetchTimeout bounds each individual network attempt. Defaults
	// to DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// Engine orchestrates uploads and downloads: chunking files into the
// content store, maintaining the manifest, minting tickets, fetching
// missing blocks from peers, and reporting progress on the event bus.
//
// Engine is safe for concurrent use. Independent transfers run
// concurrently; transfers for the same logical key are rejected with
// ErrTransferInFlight.
type Engine struct {
	store        *blob.Store
	manifest     *manifest.Manifest
	bus          *event.Bus
	dialer       transport.Dialer
	addr         string
	logger       *slog.Logger
	clock        clock.Clock
	retryBase    time.Duration
	maxAttempts  int
	fetchTimeout time.Duration
	sessions     *registry
}

// NewEngine validates the configuration and creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("transfer: Config.Store is required")
	}
	if cfg.Manifest == nil {
		return nil, fmt.Errorf("transfer: Config.Manifest is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("transfer: Config.Bus is required")
	}
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("transfer: Config.Dialer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Engine{
		store:        cfg.Store,
		manifest:     cfg.Manifest,
		bus:          cfg.Bus,
		dialer:       cfg.Dialer,
		addr:         cfg.Addr,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		retryBase:    cfg.RetryBaseDelay,
		maxAttempts:  cfg.MaxAttempts,
		fetchTimeout: cfg.FetchTimeout,
		sessions:     newRegistry(),
	}, nil
}

// Upload chunks the file into the content store, adds a manifest
// entry under the file's base name, and returns a share ticket for
// the document. Fails with manifest.ErrDuplicateFileName when the
// name is already shared; remove the old entry first.
func (e *Engine) Upload(ctx context.Context, filePath string) (*ShareResponse, error) {
	name := filepath.Base(filePath)

	s, err := e.sessions.begin(DirectionUpload, "upload:"+name, name, 0, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.publish(event.UploadQueueAppend, s)

	// The session exists before the source is touched, so a read
	// failure still surfaces as a failed upload on the event bus.
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, e.failSession(s, fmt.Errorf("reading %s: %w", filePath, err))
	}
	if len(content) == 0 {
		return nil, e.failSession(s, fmt.Errorf("cannot share empty file %s", filePath))
	}
	e.sessions.progress(s, 0, int64(len(content)))

	// Duplicate names fail while the session is still queued: no
	// blocks are written for a name that cannot be added.
	if _, exists, err := e.manifest.GetEntry(ctx, name); err != nil {
		return nil, e.failSession(s, fmt.Errorf("checking manifest: %w", err))
	} else if exists {
		return nil, e.failSession(s, fmt.Errorf("%s: %w", name, manifest.ErrDuplicateFileName))
	}

	e.sessions.run(s)

	var blocks []blob.Block
	if len(content) <= blob.SingleBlockThreshold {
		blocks = []blob.Block{{Data: content, Hash: blob.HashBlock(content)}}
	} else {
		blocks = blob.ChunkAll(content)
	}

	var offset int64
	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, e.failSession(s, fmt.Errorf("upload cancelled: %w", err))
		}
		if err := e.store.PutBlock(block.Hash, block.Data); err != nil {
			return nil, e.failSession(s, fmt.Errorf("storing block %d: %w", i, err))
		}
		offset += int64(len(block.Data))
		e.sessions.progress(s, offset, 0)
		e.publish(event.UploadProgress, s)
	}

	recipe := blob.BuildRecipe(blocks)
	if err := e.store.PutRecipe(recipe); err != nil {
		return nil, e.failSession(s, err)
	}
	if err := e.manifest.AddEntry(ctx, name, recipe.FileHash, recipe.Size); err != nil {
		return nil, e.failSession(s, err)
	}

	ticketString, err := e.shareTicket()
	if err != nil {
		return nil, e.failSession(s, err)
	}

	e.sessions.finish(s)
	e.publish(event.UploadDone, s)
	e.logger.Info("upload complete",
		"name", name,
		"size", recipe.Size,
		"blocks", len(blocks),
		"hash", blob.FormatHash(recipe.FileHash))
	return &ShareResponse{Ticket: ticketString, Name: name, Size: recipe.Size}, nil
}

// Download decodes the ticket, fetches the remote document listing,
// pulls the blocks not already present locally, and reassembles every
// file into destDir. Returns the written file paths.
//
// A malformed ticket fails fast with a *ticket.ParseError before any
// session is created. A missing destination directory fails with
// ErrDownloadDirNotFound.
func (e *Engine) Download(ctx context.Context, ticketString, destDir string) ([]string, error) {
	decoded, err := ticket.Decode(ticketString)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(destDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", destDir, ErrDownloadDirNotFound)
	}

	s, err := e.sessions.begin(DirectionDownload, "download:"+ticketString, "", 0, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.publish(event.DownloadQueueAppend, s)
	e.sessions.run(s)

	paths, err := e.download(ctx, s, decoded, destDir)
	if err != nil {
		return nil, e.failSession(s, err)
	}

	e.sessions.finish(s)
	e.publish(event.DownloadDone, s)
	e.logger.Info("download complete", "peer", decoded.Addr, "files", len(paths), "dir", destDir)
	return paths, nil
}

func (e *Engine) download(ctx context.Context, s *session, tk ticket.Ticket, destDir string) ([]string, error) {
	var listing ManifestResponse
	err := e.withRetry(ctx, "manifest", func() error {
		return e.fetchManifest(ctx, tk, &listing)
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for _, entry := range listing.Entries {
		total += entry.Size
	}
	e.sessions.progress(s, 0, total)

	var offset int64
	paths := make([]string, 0, len(listing.Entries))
	for _, entry := range listing.Entries {
		e.sessions.setName(s, entry.Name)
		path, err := e.downloadFile(ctx, s, tk.Addr, entry, destDir, offset)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", entry.Name, err)
		}
		offset += entry.Size
		e.sessions.progress(s, offset, 0)
		paths = append(paths, path)
	}
	return paths, nil
}

// downloadFile fetches one manifest entry and reassembles it into
// destDir. fileStart is the session offset at which this file begins,
// for cumulative progress reporting across a multi-file document.
func (e *Engine) downloadFile(ctx context.Context, s *session, addr string, entry FileInfo, destDir string, fileStart int64) (string, error) {
	refs := make([]blob.BlockRef, len(entry.Blocks))
	for i, b := range entry.Blocks {
		refs[i] = blob.BlockRef{Hash: b.Hash, Size: b.Size}
	}
	recipe := &blob.Recipe{
		Version:  blob.RecipeVersion,
		FileHash: entry.FileHash,
		Size:     entry.Size,
		Blocks:   refs,
	}
	// A recipe that does not hash to its own file hash is a lying
	// peer, not a flaky network.
	if err := recipe.Validate(); err != nil {
		return "", permanent(fmt.Errorf("peer sent invalid block layout: %w", err))
	}

	// Blocks already present locally count toward progress up front:
	// downloads resume by content, not byte offset.
	refSize := make(map[blob.Hash]int64, len(refs))
	for _, ref := range refs {
		refSize[ref.Hash] = ref.Size
	}
	offset := fileStart
	for _, hash := range localBlocks(e.store, recipe) {
		offset += refSize[hash]
	}
	e.sessions.progress(s, offset, 0)
	e.publish(event.DownloadProgress, s)

	err := e.withRetry(ctx, "blocks", func() error {
		// Recomputed per attempt: blocks stored by a previous
		// attempt are not requested again.
		missing := e.store.MissingBlocks(recipe)
		if len(missing) == 0 {
			return nil
		}
		return e.fetchBlocks(ctx, addr, missing, func(hash blob.Hash, data []byte) error {
			if err := e.store.PutBlock(hash, data); err != nil {
				// Hash mismatch: corrupt or hostile data,
				// never retried.
				return permanent(err)
			}
			offset += refSize[hash]
			e.sessions.progress(s, offset, 0)
			e.publish(event.DownloadProgress, s)
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	if err := e.store.PutRecipe(recipe); err != nil {
		return "", err
	}

	// Reassemble via temp file + rename: a crash or cancellation
	// mid-write leaves a recognizable .partial file, never a
	// truncated file under the real name.
	baseName := filepath.Base(entry.Name)
	tmp, err := os.CreateTemp(destDir, "."+baseName+".partial-*")
	if err != nil {
		return "", permanent(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	if _, err := e.store.Read(recipe.FileHash, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", permanent(fmt.Errorf("reassembling: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", permanent(fmt.Errorf("closing temp file: %w", err))
	}
	finalPath := filepath.Join(destDir, baseName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", permanent(fmt.Errorf("renaming into place: %w", err))
	}
	return finalPath, nil
}

// localBlocks returns the deduplicated hashes from the recipe that
// are already present in the store.
func localBlocks(store *blob.Store, recipe *blob.Recipe) []blob.Hash {
	seen := make(map[blob.Hash]struct{}, len(recipe.Blocks))
	var present []blob.Hash
	for _, ref := range recipe.Blocks {
		if _, dup := seen[ref.Hash]; dup {
			continue
		}
		seen[ref.Hash] = struct{}{}
		if store.HasBlock(ref.Hash) {
			present = append(present, ref.Hash)
		}
	}
	return present
}

// Remove detaches the named entry from the manifest. Fails with
// manifest.ErrEntryNotFound when the name is not shared. The
// underlying blob is retained: other entries or in-flight downloads
// may still reference its blocks.
func (e *Engine) Remove(ctx context.Context, name string) error {
	if err := e.manifest.RemoveEntry(ctx, name); err != nil {
		return err
	}
	e.logger.Info("entry removed", "name", name)
	return nil
}

// Purge detaches the named entry and deletes its blob content. Blocks
// still referenced by another entry's recipe survive the deletion.
func (e *Engine) Purge(ctx context.Context, name string) error {
	entry, found, err := e.manifest.GetEntry(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("purging %q: %w", name, manifest.ErrEntryNotFound)
	}
	if err := e.manifest.RemoveEntry(ctx, name); err != nil {
		return err
	}

	// Identical content under another name shares the blob hash.
	// The manifest decides liveness, not the recipe store.
	liveHashes, err := e.manifest.LiveHashes(ctx)
	if err != nil {
		return fmt.Errorf("purging %q: %w", name, err)
	}
	if _, stillLive := liveHashes[entry.BlobHash]; stillLive {
		e.logger.Info("entry purged, blob retained", "name", name)
		return nil
	}

	live, err := e.store.LiveBlocks(entry.BlobHash)
	if err != nil {
		return fmt.Errorf("purging %q: %w", name, err)
	}
	deleted, err := e.store.Delete(entry.BlobHash, live)
	if err != nil {
		return fmt.Errorf("purging %q: %w", name, err)
	}
	e.logger.Info("entry purged", "name", name, "blocks_deleted", len(deleted))
	return nil
}

// GetShareCode mints a ticket for the whole document without
// uploading anything new.
func (e *Engine) GetShareCode() (*ShareResponse, error) {
	ticketString, err := e.shareTicket()
	if err != nil {
		return nil, err
	}
	return &ShareResponse{Ticket: ticketString}, nil
}

func (e *Engine) shareTicket() (string, error) {
	t := ticket.Ticket{
		DocumentID: e.manifest.DocumentID(),
		Addr:       e.addr,
		Capability: ticket.CapabilityRead,
	}
	return t.Encode()
}

// Session returns a snapshot of the session with the given ID.
func (e *Engine) Session(id uuid.UUID) (Session, bool) {
	return e.sessions.get(id)
}

// Sessions returns snapshots of all sessions, newest first. Terminal
// sessions remain listed until released.
func (e *Engine) Sessions() []Session {
	return e.sessions.list()
}

// ReleaseSession removes a terminal session from the registry.
// Returns false if the session is unknown or still active.
func (e *Engine) ReleaseSession(id uuid.UUID) bool {
	return e.sessions.release(id)
}

// publish emits a transfer event reflecting the session's current
// state.
func (e *Engine) publish(kind event.TransferEventKind, s *session) {
	snap := e.sessions.snapshot(s)
	e.bus.Publish(event.TransferEvent{
		Kind:   kind,
		ID:     snap.ID,
		Name:   snap.FileName,
		Size:   snap.Size,
		Offset: snap.Offset,
		Error:  snap.Error,
	})
}

// failSession moves the session to its terminal error state, emits
// TransferError, and returns err for the caller to propagate.
func (e *Engine) failSession(s *session, err error) error {
	e.sessions.fail(s, err.Error())
	e.publish(event.TransferError, s)
	snap := e.sessions.snapshot(s)
	e.logger.Warn("transfer failed",
		"id", snap.ID,
		"direction", snap.Direction,
		"name", snap.FileName,
		"error", err)
	return err
}
