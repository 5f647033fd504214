// Package db opens SQLite databases with the PRAGMA settings the
// client relies on for concurrent-safe local storage.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

func connString(file string) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_foreign_keys", "true")
	params.Add("_txlock", "immediate")
	params.Add("mode", "rwc")
	return "file:" + file + "?" + params.Encode()
}

// Open opens (creating if needed) a SQLite database at path. The
// single-connection pool serializes writes, which is all a local
// transcript needs.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	handle, err := sql.Open("sqlite", connString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// temp_store cannot be set through the connection string.
	if _, err := handle.Exec("PRAGMA temp_store=memory;"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set PRAGMA temp_store: %w", err)
	}

	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	return handle, nil
}
