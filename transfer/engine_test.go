// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/lib/clock"
	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/ticket"
	"github.com/quicksend-foundation/quicksend/transport"
)

// testNode is one peer: a content store, a manifest, an engine, and
// (when served) a transfer server on a loopback TCP listener.
type testNode struct {
	store    *blob.Store
	manifest *manifest.Manifest
	bus      *event.Bus
	engine   *Engine
	addr     string
}

func newTestNode(t *testing.T, serve bool, opts ...func(*Config)) *testNode {
	t.Helper()

	dir := t.TempDir()
	store, err := blob.NewStore(filepath.Join(dir, "blob"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	m, err := manifest.Open(manifest.Config{
		Path:  filepath.Join(dir, "manifest.db"),
		Blobs: store,
	})
	if err != nil {
		t.Fatalf("manifest.Open failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	node := &testNode{
		store:    store,
		manifest: m,
		bus:      event.NewBus(),
	}

	if serve {
		listener, err := transport.NewTCPListener("127.0.0.1:0")
		if err != nil {
			t.Fatalf("NewTCPListener failed: %v", err)
		}
		server, err := NewServer(ServerConfig{Store: store, Manifest: m})
		if err != nil {
			t.Fatalf("NewServer failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			server.Serve(ctx, listener)
		}()
		t.Cleanup(func() {
			cancel()
			listener.Close()
			<-done
		})
		node.addr = listener.Address()
	}

	cfg := Config{
		Store:    store,
		Manifest: m,
		Bus:      node.bus,
		Dialer:   &transport.TCPDialer{},
		Addr:     node.addr,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	node.engine, err = NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return node
}

// writeTestFile creates a file with seeded pseudo-random content and
// returns its path and content.
func writeTestFile(t *testing.T, name string, seed int64, length int) (string, []byte) {
	t.Helper()
	data := make([]byte, length)
	rng := rand.New(rand.NewSource(seed))
	rng.Read(data)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path, data
}

// drainEvents collects everything currently buffered on the
// subscription without blocking.
func drainEvents(sub *event.Subscription) []event.Event {
	var out []event.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func transferKinds(events []event.Event) []event.TransferEventKind {
	var kinds []event.TransferEventKind
	for _, ev := range events {
		if te, ok := ev.(event.TransferEvent); ok {
			kinds = append(kinds, te.Kind)
		}
	}
	return kinds
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	sharer := newTestNode(t, true)
	fetcher := newTestNode(t, false)

	const size = 10 * 1024 * 1024
	path, content := writeTestFile(t, "dataset.bin", 11, size)

	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if share.Name != "dataset.bin" || share.Size != size {
		t.Fatalf("unexpected share response: %+v", share)
	}

	sub := fetcher.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	destDir := t.TempDir()
	paths, err := fetcher.engine.Download(context.Background(), share.Ticket, destDir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("downloaded %d files, want 1", len(paths))
	}

	got, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("downloaded content differs from the original")
	}
	if filepath.Base(paths[0]) != "dataset.bin" {
		t.Errorf("downloaded name = %s, want dataset.bin", filepath.Base(paths[0]))
	}

	// No .partial leftovers.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("reading dest dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dest dir has %d entries, want 1", len(entries))
	}

	sessions := fetcher.engine.Sessions()
	if len(sessions) != 1 || sessions[0].Status != StatusDone {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if sessions[0].Offset != size {
		t.Errorf("final offset = %d, want %d", sessions[0].Offset, size)
	}

	kinds := transferKinds(drainEvents(sub))
	if len(kinds) < 3 {
		t.Fatalf("too few events: %v", kinds)
	}
	if kinds[0] != event.DownloadQueueAppend {
		t.Errorf("first event = %s, want DownloadQueueAppend", kinds[0])
	}
	if kinds[len(kinds)-1] != event.DownloadDone {
		t.Errorf("last event = %s, want DownloadDone", kinds[len(kinds)-1])
	}
	progressSeen := false
	for _, kind := range kinds {
		if kind == event.DownloadProgress {
			progressSeen = true
		}
	}
	if !progressSeen {
		t.Error("no DownloadProgress events were emitted")
	}
}

func TestUploadEmitsProgressPerBlock(t *testing.T) {
	node := newTestNode(t, true)
	path, _ := writeTestFile(t, "big.bin", 3, 1024*1024)

	sub := node.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	share, err := node.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if share.Ticket == "" {
		t.Fatal("empty ticket")
	}

	events := drainEvents(sub)
	kinds := transferKinds(events)
	if kinds[0] != event.UploadQueueAppend {
		t.Errorf("first event = %s, want UploadQueueAppend", kinds[0])
	}
	if kinds[len(kinds)-1] != event.UploadDone {
		t.Errorf("last event = %s, want UploadDone", kinds[len(kinds)-1])
	}

	// 1MB of random data chunks into several blocks; progress must
	// arrive at least once per block with a monotonic offset.
	var progress []int64
	for _, ev := range events {
		te := ev.(event.TransferEvent)
		if te.Kind == event.UploadProgress {
			progress = append(progress, te.Offset)
		}
	}
	if len(progress) < 2 {
		t.Fatalf("got %d progress events, want several", len(progress))
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("progress is not monotonic: %v", progress)
		}
	}
	if progress[len(progress)-1] != 1024*1024 {
		t.Errorf("final progress offset = %d, want %d", progress[len(progress)-1], 1024*1024)
	}
}

func TestUploadDuplicateName(t *testing.T) {
	node := newTestNode(t, true)
	path, _ := writeTestFile(t, "dup.txt", 5, 1024)

	if _, err := node.engine.Upload(context.Background(), path); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}

	sub := node.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	_, err := node.engine.Upload(context.Background(), path)
	if !errors.Is(err, manifest.ErrDuplicateFileName) {
		t.Fatalf("err = %v, want ErrDuplicateFileName", err)
	}

	// The failed session never ran: queue append, then the error.
	kinds := transferKinds(drainEvents(sub))
	for _, kind := range kinds {
		if kind == event.UploadProgress || kind == event.UploadDone {
			t.Fatalf("duplicate upload emitted %s", kind)
		}
	}
	if kinds[len(kinds)-1] != event.TransferError {
		t.Errorf("last event = %s, want TransferError", kinds[len(kinds)-1])
	}
}

func TestUploadUnreadableSourceFailsSession(t *testing.T) {
	node := newTestNode(t, true)

	sub := node.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	_, err := node.engine.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Fatal("expected the upload to fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want a not-exist error", err)
	}

	// The failure is visible like any other: a session in the error
	// state and a TransferError on the bus.
	sessions := node.engine.Sessions()
	if len(sessions) != 1 || sessions[0].Status != StatusError {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	kinds := transferKinds(drainEvents(sub))
	if len(kinds) == 0 || kinds[len(kinds)-1] != event.TransferError {
		t.Errorf("events = %v, want TransferError last", kinds)
	}
}

func TestDownloadGarbageTicketCreatesNoSession(t *testing.T) {
	node := newTestNode(t, false)

	_, err := node.engine.Download(context.Background(), "not-a-ticket", t.TempDir())
	var parseErr *ticket.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ticket.ParseError", err)
	}
	if sessions := node.engine.Sessions(); len(sessions) != 0 {
		t.Fatalf("a session was created for a garbage ticket: %+v", sessions)
	}
}

func TestDownloadDirNotFound(t *testing.T) {
	sharer := newTestNode(t, true)
	path, _ := writeTestFile(t, "f.txt", 1, 512)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	fetcher := newTestNode(t, false)
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err = fetcher.engine.Download(context.Background(), share.Ticket, missing)
	if !errors.Is(err, ErrDownloadDirNotFound) {
		t.Fatalf("err = %v, want ErrDownloadDirNotFound", err)
	}
}

func TestDownloadSkipsLocallyPresentBlocks(t *testing.T) {
	sharer := newTestNode(t, true)
	path, content := writeTestFile(t, "seeded.bin", 9, 600*1024)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// Pre-seed the fetcher's store with the identical content: every
	// block is already local, so the first progress event reports the
	// full size before any block request goes out.
	fetcher := newTestNode(t, false)
	if _, err := fetcher.store.WriteContent(content, ""); err != nil {
		t.Fatalf("pre-seeding failed: %v", err)
	}

	sub := fetcher.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	destDir := t.TempDir()
	paths, err := fetcher.engine.Download(context.Background(), share.Ticket, destDir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("downloaded content differs from the original")
	}

	for _, ev := range drainEvents(sub) {
		te := ev.(event.TransferEvent)
		if te.Kind == event.DownloadProgress {
			if te.Offset != int64(len(content)) {
				t.Fatalf("first progress offset = %d, want %d (all blocks local)",
					te.Offset, len(content))
			}
			break
		}
	}
}

func TestRemove(t *testing.T) {
	node := newTestNode(t, true)
	path, _ := writeTestFile(t, "gone.txt", 2, 256)

	if _, err := node.engine.Upload(context.Background(), path); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if err := node.engine.Remove(context.Background(), "gone.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := node.engine.Remove(context.Background(), "gone.txt"); !errors.Is(err, manifest.ErrEntryNotFound) {
		t.Fatalf("second Remove: err = %v, want ErrEntryNotFound", err)
	}
	if err := node.engine.Remove(context.Background(), "missing.txt"); !errors.Is(err, manifest.ErrEntryNotFound) {
		t.Fatalf("Remove of unknown name: err = %v, want ErrEntryNotFound", err)
	}
}

func TestPurgeDeletesUnsharedBlocks(t *testing.T) {
	node := newTestNode(t, true)
	path, _ := writeTestFile(t, "purged.txt", 3, 512*1024)

	if _, err := node.engine.Upload(context.Background(), path); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	entry, found, err := node.manifest.GetEntry(context.Background(), "purged.txt")
	if err != nil || !found {
		t.Fatalf("GetEntry: found=%v err=%v", found, err)
	}
	recipe, err := node.store.Recipe(entry.BlobHash)
	if err != nil {
		t.Fatalf("Recipe failed: %v", err)
	}

	if err := node.engine.Purge(context.Background(), "purged.txt"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	// Entry gone, recipe gone, blocks gone.
	if _, found, _ := node.manifest.GetEntry(context.Background(), "purged.txt"); found {
		t.Error("entry survived the purge")
	}
	if node.store.Exists(entry.BlobHash) {
		t.Error("recipe survived the purge")
	}
	for _, block := range recipe.Blocks {
		if node.store.HasBlock(block.Hash) {
			t.Errorf("block %s survived the purge", blob.FormatHash(block.Hash))
		}
	}

	if err := node.engine.Purge(context.Background(), "purged.txt"); !errors.Is(err, manifest.ErrEntryNotFound) {
		t.Fatalf("second Purge: err = %v, want ErrEntryNotFound", err)
	}
}

func TestPurgeKeepsBlocksSharedWithAnotherEntry(t *testing.T) {
	node := newTestNode(t, true)

	// Two names for byte-identical content: the blocks are shared.
	path1, _ := writeTestFile(t, "copy-one.txt", 4, 256*1024)
	data, err := os.ReadFile(path1)
	if err != nil {
		t.Fatal(err)
	}
	path2 := filepath.Join(filepath.Dir(path1), "copy-two.txt")
	if err := os.WriteFile(path2, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := node.engine.Upload(context.Background(), path1); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}
	if _, err := node.engine.Upload(context.Background(), path2); err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}

	entry, _, err := node.manifest.GetEntry(context.Background(), "copy-two.txt")
	if err != nil {
		t.Fatal(err)
	}
	recipe, err := node.store.Recipe(entry.BlobHash)
	if err != nil {
		t.Fatalf("Recipe failed: %v", err)
	}

	if err := node.engine.Purge(context.Background(), "copy-one.txt"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	// copy-two still reads back intact.
	for _, block := range recipe.Blocks {
		if !node.store.HasBlock(block.Hash) {
			t.Fatalf("shared block %s was deleted", blob.FormatHash(block.Hash))
		}
	}
	got, err := node.store.ReadContent(entry.BlobHash)
	if err != nil {
		t.Fatalf("ReadContent after purge failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("surviving entry's content changed after purge")
	}
}

func TestGetShareCode(t *testing.T) {
	node := newTestNode(t, true)

	share, err := node.engine.GetShareCode()
	if err != nil {
		t.Fatalf("GetShareCode failed: %v", err)
	}
	decoded, err := ticket.Decode(share.Ticket)
	if err != nil {
		t.Fatalf("minted ticket does not decode: %v", err)
	}
	if decoded.DocumentID != node.manifest.DocumentID() {
		t.Error("ticket document ID does not match the manifest")
	}
	if decoded.Addr != node.addr {
		t.Errorf("ticket addr = %s, want %s", decoded.Addr, node.addr)
	}
}

func TestConcurrentDownloadSameTicketRejected(t *testing.T) {
	sharer := newTestNode(t, true)
	path, _ := writeTestFile(t, "contended.bin", 21, 2*1024*1024)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// Hold the first download's key by failing it against a paused
	// clock is overkill here; exercising the registry directly covers
	// the interleaving, so this test pins the engine-level key shape.
	fetcher := newTestNode(t, false)
	s, err := fetcher.engine.sessions.begin(DirectionDownload, "download:"+share.Ticket, "", 0, time.Now())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	_, err = fetcher.engine.Download(context.Background(), share.Ticket, t.TempDir())
	if !errors.Is(err, ErrTransferInFlight) {
		t.Fatalf("err = %v, want ErrTransferInFlight", err)
	}

	fetcher.engine.sessions.fail(s, "released")
	if _, err := fetcher.engine.Download(context.Background(), share.Ticket, t.TempDir()); err != nil {
		t.Fatalf("Download after release failed: %v", err)
	}
}

// flakyDialer fails the first failures dials, then delegates.
type flakyDialer struct {
	failures int32
	inner    transport.Dialer
	dials    atomic.Int32
}

func (d *flakyDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	attempt := d.dials.Add(1)
	if attempt <= d.failures {
		return nil, errors.New("connection refused (simulated)")
	}
	return d.inner.DialContext(ctx, address)
}

// advanceUntil drives a fake clock forward until done closes, firing
// any pending backoff waiters.
func advanceUntil(t *testing.T, fake *clock.FakeClock, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("timed out waiting for the transfer to finish")
		default:
			if fake.PendingWaiters() > 0 {
				fake.Advance(time.Minute)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDownloadRetriesTransientDialFailures(t *testing.T) {
	sharer := newTestNode(t, true)
	path, content := writeTestFile(t, "flaky.bin", 17, 300*1024)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dialer := &flakyDialer{failures: 2, inner: &transport.TCPDialer{}}
	fetcher := newTestNode(t, false, func(cfg *Config) {
		cfg.Clock = fake
		cfg.Dialer = dialer
	})

	destDir := t.TempDir()
	var paths []string
	var downloadErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		paths, downloadErr = fetcher.engine.Download(context.Background(), share.Ticket, destDir)
	}()
	advanceUntil(t, fake, done)

	if downloadErr != nil {
		t.Fatalf("Download failed despite retries: %v", downloadErr)
	}
	got, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("downloaded content differs from the original")
	}
	if dials := dialer.dials.Load(); dials < 3 {
		t.Errorf("dial count = %d, want at least 3 (two failures, then success)", dials)
	}
}

func TestDownloadExhaustsRetriesThenFails(t *testing.T) {
	sharer := newTestNode(t, true)
	path, _ := writeTestFile(t, "unreachable.bin", 19, 1024)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dialer := &flakyDialer{failures: 1 << 20, inner: &transport.TCPDialer{}}
	fetcher := newTestNode(t, false, func(cfg *Config) {
		cfg.Clock = fake
		cfg.Dialer = dialer
		cfg.MaxAttempts = 3
	})

	sub := fetcher.bus.Subscribe(event.ScopeAll())
	defer sub.Close()

	var downloadErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, downloadErr = fetcher.engine.Download(context.Background(), share.Ticket, t.TempDir())
	}()
	advanceUntil(t, fake, done)

	if downloadErr == nil {
		t.Fatal("expected the download to fail")
	}
	if !strings.Contains(downloadErr.Error(), "after 3 attempts") {
		t.Errorf("unexpected error: %v", downloadErr)
	}
	if dials := dialer.dials.Load(); dials != 3 {
		t.Errorf("dial count = %d, want exactly 3", dials)
	}

	sessions := fetcher.engine.Sessions()
	if len(sessions) != 1 || sessions[0].Status != StatusError {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	kinds := transferKinds(drainEvents(sub))
	if kinds[len(kinds)-1] != event.TransferError {
		t.Errorf("last event = %s, want TransferError", kinds[len(kinds)-1])
	}
}

func TestDownloadCancelled(t *testing.T) {
	sharer := newTestNode(t, true)
	path, _ := writeTestFile(t, "cancelled.bin", 23, 1024)
	share, err := sharer.engine.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	fetcher := newTestNode(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	destDir := t.TempDir()
	_, err = fetcher.engine.Download(ctx, share.Ticket, destDir)
	if err == nil {
		t.Fatal("expected the download to fail")
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("unexpected error: %v", err)
	}

	sessions := fetcher.engine.Sessions()
	if len(sessions) != 1 || sessions[0].Status != StatusError {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	// No partial output in the destination.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("reading dest dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dest dir has %d entries after cancellation, want 0", len(entries))
	}
}

// hostilePeer serves a valid manifest but corrupts every block
// payload it sends.
func hostilePeer(t *testing.T, content []byte) (addr string, documentID uuid.UUID) {
	t.Helper()

	blockHash := blob.HashBlock(content)
	fileHash := blob.HashFile(blob.MerkleRoot([]blob.Hash{blockHash}))
	docID := uuid.UUID{1, 2, 3, 4}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					var request Request
					if err := readMessage(conn, &request); err != nil {
						return
					}
					switch request.Action {
					case ActionManifest:
						writeMessage(conn, ManifestResponse{
							DocumentID: request.DocumentID,
							Entries: []FileInfo{{
								Name:     "poisoned.bin",
								FileHash: fileHash,
								Size:     int64(len(content)),
								Blocks:   []BlockInfo{{Hash: blockHash, Size: int64(len(content))}},
							}},
						})
					case ActionBlocks:
						corrupted := bytes.Clone(content)
						corrupted[0] ^= 0xFF
						writeBlockPayload(conn, blockHash, corrupted)
					}
				}
			}(conn)
		}
	}()
	return listener.Addr().String(), docID
}

func TestCorruptBlockFailsWithoutRetry(t *testing.T) {
	content := make([]byte, 64*1024)
	rand.New(rand.NewSource(31)).Read(content)
	addr, docID := hostilePeer(t, content)

	share, err := (ticket.Ticket{DocumentID: docID, Addr: addr}).Encode()
	if err != nil {
		t.Fatalf("encoding ticket: %v", err)
	}

	dialer := &flakyDialer{failures: 0, inner: &transport.TCPDialer{}}
	fetcher := newTestNode(t, false, func(cfg *Config) {
		cfg.Dialer = dialer
	})

	_, err = fetcher.engine.Download(context.Background(), share, t.TempDir())
	if err == nil {
		t.Fatal("expected the download to fail")
	}
	if !strings.Contains(err.Error(), "hashes to") {
		t.Errorf("unexpected error: %v", err)
	}

	// One dial for the manifest, one for the blocks. An integrity
	// failure must not be retried.
	if dials := dialer.dials.Load(); dials != 2 {
		t.Errorf("dial count = %d, want 2", dials)
	}
	if fetcher.store.HasBlock(blob.HashBlock(content)) {
		t.Error("corrupt block was committed to the store")
	}
}

func TestOversizedFrameFailsWithoutRetry(t *testing.T) {
	// The peer answers the manifest request by announcing a frame one
	// byte past the cap. Both sides enforce the same limit, so this is
	// a protocol violation and a retry can never succeed.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var request Request
				if err := readMessage(conn, &request); err != nil {
					return
				}
				var lengthPrefix [4]byte
				binary.BigEndian.PutUint32(lengthPrefix[:], MaxMessageSize+1)
				conn.Write(lengthPrefix[:])
			}(conn)
		}
	}()

	share, err := (ticket.Ticket{DocumentID: uuid.New(), Addr: listener.Addr().String()}).Encode()
	if err != nil {
		t.Fatalf("encoding ticket: %v", err)
	}

	dialer := &flakyDialer{failures: 0, inner: &transport.TCPDialer{}}
	fetcher := newTestNode(t, false, func(cfg *Config) {
		cfg.Dialer = dialer
	})

	_, err = fetcher.engine.Download(context.Background(), share, t.TempDir())
	if err == nil {
		t.Fatal("expected the download to fail")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("unexpected error: %v", err)
	}
	if dials := dialer.dials.Load(); dials != 1 {
		t.Errorf("dial count = %d, want 1", dials)
	}

	sessions := fetcher.engine.Sessions()
	if len(sessions) != 1 || sessions[0].Status != StatusError {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}
