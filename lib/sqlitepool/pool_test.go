// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	if err == nil {
		t.Fatal("Open with empty Path should fail")
	}
}

func TestTakePutRoundtrip(t *testing.T) {
	pool, err := Open(Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	if err := sqlitex.ExecuteTransient(conn, "CREATE TABLE t (x INTEGER)", nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	pool.Put(conn)

	// A second connection sees the table.
	conn2, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("second Take: %v", err)
	}
	defer pool.Put(conn2)

	var found bool
	err = sqlitex.ExecuteTransient(conn2,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='t'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if !found {
		t.Error("table created on one connection not visible on another")
	}
}

func TestOnConnectRunsSchema(t *testing.T) {
	pool, err := Open(Config{
		Path: filepath.Join(t.TempDir(), "schema.db"),
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn,
				"CREATE TABLE IF NOT EXISTS entries (name TEXT PRIMARY KEY)", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	err = sqlitex.ExecuteTransient(conn,
		"INSERT INTO entries (name) VALUES ('a.txt')", nil)
	if err != nil {
		t.Fatalf("insert into OnConnect-created table: %v", err)
	}
}

func TestWALModeApplied(t *testing.T) {
	pool, err := Open(Config{
		Path: filepath.Join(t.TempDir(), "wal.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var mode string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			mode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
