// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/lib/clock"
	"github.com/quicksend-foundation/quicksend/lib/sqlitepool"
)

// ErrDuplicateFileName is returned by AddEntry when an entry with the
// same name already exists. Names are never overwritten: removing the
// old entry first is an explicit, separate operation.
var ErrDuplicateFileName = errors.New("file name already exists in manifest")

// ErrEntryNotFound is returned by RemoveEntry when no entry with the
// given name exists.
var ErrEntryNotFound = errors.New("file name not found in manifest")

// ErrBlobMissing is returned by AddEntry when the referenced blob is
// not present in the content store. The manifest never points at
// content that cannot be served.
var ErrBlobMissing = errors.New("referenced blob is not in the content store")

// BlobChecker reports whether a blob is present in the content store.
// *blob.Store satisfies this.
type BlobChecker interface {
	Exists(hash blob.Hash) bool
}

// Entry is one named file in the document manifest.
type Entry struct {
	// Name is the file name under which the blob is shared. Unique
	// within the document.
	Name string `json:"name"`

	// BlobHash is the file-domain hash of the content in the blob
	// store.
	BlobHash blob.Hash `json:"blob_hash"`

	// Size is the uncompressed content size in bytes.
	Size int64 `json:"size"`

	// CreatedAt is when the entry was added.
	CreatedAt time.Time `json:"created_at"`
}

// Config holds the parameters for opening a manifest.
type Config struct {
	// Path is the filesystem path to the manifest database file,
	// typically <data_root>/manifest.db. Required.
	Path string

	// Blobs verifies referential integrity on AddEntry. Required.
	Blobs BlobChecker

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Clock supplies entry timestamps. If nil, the real clock is
	// used.
	Clock clock.Clock
}

// Manifest is the SQLite-backed map from file names to blob hashes
// that defines the shareable document. The document's identity is a
// UUID minted when the manifest is first created and stable across
// restarts; share tickets embed it.
//
// Manifest is safe for concurrent use. SQLite's WAL mode lets readers
// run alongside the single writer.
type Manifest struct {
	pool       *sqlitepool.Pool
	blobs      BlobChecker
	logger     *slog.Logger
	clock      clock.Clock
	documentID uuid.UUID
}

const schema = `
	CREATE TABLE IF NOT EXISTS document (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		document_id BLOB NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		name       TEXT PRIMARY KEY,
		blob_hash  BLOB NOT NULL,
		size       INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
`

// Open opens (creating if necessary) the manifest database at
// cfg.Path. On first open, a fresh document UUID is minted and
// persisted. The caller must call Close when done.
func Open(cfg Config) (*Manifest, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("manifest: Path is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("manifest: Blobs is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		pool:   pool,
		blobs:  cfg.Blobs,
		logger: logger,
		clock:  clk,
	}

	if err := m.loadOrMintDocumentID(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug("manifest opened",
		"path", cfg.Path,
		"document_id", m.documentID,
	)

	return m, nil
}

// Close releases the underlying connection pool.
func (m *Manifest) Close() error {
	return m.pool.Close()
}

// DocumentID returns the manifest's stable document UUID.
func (m *Manifest) DocumentID() uuid.UUID {
	return m.documentID
}

// AddEntry inserts a new named entry. The referenced blob must
// already be in the content store (ErrBlobMissing otherwise), and the
// name must be unused (ErrDuplicateFileName otherwise). Entries are
// never overwritten.
func (m *Manifest) AddEntry(ctx context.Context, name string, hash blob.Hash, size int64) error {
	if name == "" {
		return fmt.Errorf("manifest: entry name is required")
	}
	if size < 0 {
		return fmt.Errorf("manifest: entry size %d is negative", size)
	}
	if !m.blobs.Exists(hash) {
		return fmt.Errorf("manifest: adding %q: %w", name, ErrBlobMissing)
	}

	conn, err := m.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer m.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO entries (name, blob_hash, size, created_at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{name, hash[:], size, m.clock.Now().Unix()},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
			return fmt.Errorf("manifest: adding %q: %w", name, ErrDuplicateFileName)
		}
		return fmt.Errorf("manifest: adding %q: %w", name, err)
	}

	m.logger.Debug("manifest entry added",
		"name", name,
		"hash", blob.FormatHash(hash),
		"size", size,
	)
	return nil
}

// RemoveEntry deletes the entry with the given name. Returns
// ErrEntryNotFound if no such entry exists. The blob itself is left
// in the content store; garbage collection is the caller's decision.
func (m *Manifest) RemoveEntry(ctx context.Context, name string) error {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer m.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"DELETE FROM entries WHERE name = ?",
		&sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return fmt.Errorf("manifest: removing %q: %w", name, err)
	}

	if conn.Changes() == 0 {
		return fmt.Errorf("manifest: removing %q: %w", name, ErrEntryNotFound)
	}

	m.logger.Debug("manifest entry removed", "name", name)
	return nil
}

// GetEntry returns the entry with the given name, or false if no such
// entry exists.
func (m *Manifest) GetEntry(ctx context.Context, name string) (Entry, bool, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	defer m.pool.Put(conn)

	var entry Entry
	var found bool
	err = sqlitex.Execute(conn,
		"SELECT name, blob_hash, size, created_at FROM entries WHERE name = ?",
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				parsed, err := scanEntry(stmt)
				if err != nil {
					return err
				}
				entry = parsed
				found = true
				return nil
			},
		})
	if err != nil {
		return Entry{}, false, fmt.Errorf("manifest: reading %q: %w", name, err)
	}

	return entry, found, nil
}

// ListEntries returns all entries in name order.
func (m *Manifest) ListEntries(ctx context.Context) ([]Entry, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer m.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		"SELECT name, blob_hash, size, created_at FROM entries ORDER BY name",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry, err := scanEntry(stmt)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("manifest: listing entries: %w", err)
	}

	return entries, nil
}

// LiveHashes returns the set of blob hashes referenced by any entry.
// This is the live set for content store garbage collection.
func (m *Manifest) LiveHashes(ctx context.Context) (map[blob.Hash]struct{}, error) {
	entries, err := m.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[blob.Hash]struct{}, len(entries))
	for _, entry := range entries {
		live[entry.BlobHash] = struct{}{}
	}
	return live, nil
}

// loadOrMintDocumentID reads the persisted document UUID, creating
// one if this is a fresh manifest.
func (m *Manifest) loadOrMintDocumentID(ctx context.Context) error {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer m.pool.Put(conn)

	var raw []byte
	err = sqlitex.Execute(conn,
		"SELECT document_id FROM document WHERE id = 1",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, raw)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("manifest: reading document id: %w", err)
	}

	if raw != nil {
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("manifest: persisted document id is invalid: %w", err)
		}
		m.documentID = id
		return nil
	}

	id := uuid.New()
	err = sqlitex.Execute(conn,
		"INSERT INTO document (id, document_id, created_at) VALUES (1, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{id[:], m.clock.Now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("manifest: persisting document id: %w", err)
	}

	m.documentID = id
	return nil
}

// scanEntry reads one entries row from the current statement
// position.
func scanEntry(stmt *sqlite.Stmt) (Entry, error) {
	var hash blob.Hash
	if n := stmt.ColumnBytes(1, hash[:]); n != len(hash) {
		return Entry{}, fmt.Errorf("blob hash column is %d bytes, want %d", n, len(hash))
	}
	return Entry{
		Name:      stmt.ColumnText(0),
		BlobHash:  hash,
		Size:      stmt.ColumnInt64(2),
		CreatedAt: time.Unix(stmt.ColumnInt64(3), 0).UTC(),
	}, nil
}
