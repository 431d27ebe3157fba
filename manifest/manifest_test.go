// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/lib/clock"
)

// fakeBlobs is a BlobChecker backed by a set of hashes.
type fakeBlobs map[blob.Hash]struct{}

func (f fakeBlobs) Exists(hash blob.Hash) bool {
	_, ok := f[hash]
	return ok
}

func (f fakeBlobs) add(data string) blob.Hash {
	hash := blob.HashBlock([]byte(data))
	f[hash] = struct{}{}
	return hash
}

func openTestManifest(t *testing.T, blobs fakeBlobs) *Manifest {
	t.Helper()
	m, err := Open(Config{
		Path:  filepath.Join(t.TempDir(), "manifest.db"),
		Blobs: blobs,
		Clock: clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManifestDocumentIDStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	blobs := fakeBlobs{}

	first, err := Open(Config{Path: path, Blobs: blobs})
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	id := first.DocumentID()
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	if id == uuid.Nil {
		t.Fatal("document ID is the zero UUID")
	}

	second, err := Open(Config{Path: path, Blobs: blobs})
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer second.Close()

	if second.DocumentID() != id {
		t.Errorf("document ID changed across reopen: %s -> %s", id, second.DocumentID())
	}
}

func TestManifestAddGetList(t *testing.T) {
	ctx := context.Background()
	blobs := fakeBlobs{}
	m := openTestManifest(t, blobs)

	hashB := blobs.add("content b")
	hashA := blobs.add("content a")

	if err := m.AddEntry(ctx, "b.txt", hashB, 9); err != nil {
		t.Fatalf("AddEntry b.txt failed: %v", err)
	}
	if err := m.AddEntry(ctx, "a.txt", hashA, 9); err != nil {
		t.Fatalf("AddEntry a.txt failed: %v", err)
	}

	entry, found, err := m.GetEntry(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("GetEntry did not find a.txt")
	}
	if entry.BlobHash != hashA {
		t.Error("GetEntry returned wrong blob hash")
	}
	if entry.Size != 9 {
		t.Errorf("Size = %d, want 9", entry.Size)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	_, found, err = m.GetEntry(ctx, "missing.txt")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("GetEntry found an entry that was never added")
	}

	entries, err := m.ListEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListEntries returned %d entries, want 2", len(entries))
	}
	if entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Errorf("entries not in name order: %q, %q", entries[0].Name, entries[1].Name)
	}
}

func TestManifestDuplicateNameRejected(t *testing.T) {
	ctx := context.Background()
	blobs := fakeBlobs{}
	m := openTestManifest(t, blobs)

	original := blobs.add("original")
	replacement := blobs.add("replacement")

	if err := m.AddEntry(ctx, "file.txt", original, 8); err != nil {
		t.Fatal(err)
	}

	err := m.AddEntry(ctx, "file.txt", replacement, 11)
	if !errors.Is(err, ErrDuplicateFileName) {
		t.Fatalf("duplicate AddEntry: got %v, want ErrDuplicateFileName", err)
	}

	// The original entry must be untouched.
	entry, found, err := m.GetEntry(ctx, "file.txt")
	if err != nil || !found {
		t.Fatalf("GetEntry after rejected add: found=%v err=%v", found, err)
	}
	if entry.BlobHash != original {
		t.Error("rejected add overwrote the original entry")
	}
}

func TestManifestAddEntryRequiresBlob(t *testing.T) {
	ctx := context.Background()
	m := openTestManifest(t, fakeBlobs{})

	err := m.AddEntry(ctx, "ghost.txt", blob.HashBlock([]byte("not stored")), 10)
	if !errors.Is(err, ErrBlobMissing) {
		t.Fatalf("AddEntry for absent blob: got %v, want ErrBlobMissing", err)
	}
}

func TestManifestRemoveEntry(t *testing.T) {
	ctx := context.Background()
	blobs := fakeBlobs{}
	m := openTestManifest(t, blobs)

	hash := blobs.add("removable")
	if err := m.AddEntry(ctx, "file.txt", hash, 9); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveEntry(ctx, "file.txt"); err != nil {
		t.Fatalf("RemoveEntry failed: %v", err)
	}

	_, found, err := m.GetEntry(ctx, "file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("entry still present after RemoveEntry")
	}

	// Removing again reports not found.
	if err := m.RemoveEntry(ctx, "file.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second RemoveEntry: got %v, want ErrEntryNotFound", err)
	}

	// The name is reusable after removal.
	if err := m.AddEntry(ctx, "file.txt", hash, 9); err != nil {
		t.Errorf("AddEntry after remove failed: %v", err)
	}
}

func TestManifestLiveHashes(t *testing.T) {
	ctx := context.Background()
	blobs := fakeBlobs{}
	m := openTestManifest(t, blobs)

	shared := blobs.add("shared content")
	only := blobs.add("single reference")

	if err := m.AddEntry(ctx, "one.txt", shared, 14); err != nil {
		t.Fatal(err)
	}
	if err := m.AddEntry(ctx, "two.txt", shared, 14); err != nil {
		t.Fatal(err)
	}
	if err := m.AddEntry(ctx, "three.txt", only, 16); err != nil {
		t.Fatal(err)
	}

	live, err := m.LiveHashes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 2 {
		t.Errorf("LiveHashes returned %d hashes, want 2", len(live))
	}
	if _, ok := live[shared]; !ok {
		t.Error("shared hash missing from live set")
	}
	if _, ok := live[only]; !ok {
		t.Error("singly-referenced hash missing from live set")
	}
}
