package db

import (
	"fmt"
	"os"
	"path/filepath"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBinFile Implementation = "binfile"
	ImplBolt    Implementation = "bolt"
)

// Record is a single user row of a snapshot.
// A nil or empty Content means the user has no data.
type Record struct {
	Username []byte
	Password []byte
	Content  []byte
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// ISnapshotDB defines an interface for persisting the complete user table to a
// single file. Records are written and returned in table insertion order.
type ISnapshotDB interface {

	// Save replaces the file at path with a snapshot of records.
	// The replacement must be atomic: a reader sees either the old or the new file,
	// never a partially written one.
	Save(path string, records []Record) (err error)

	// Load reads the snapshot stored at path.
	// A missing file is reported with an error wrapping fs.ErrNotExist.
	Load(path string) (records []Record, err error)

	// Implementation returns the identifier of the engine
	Implementation() Implementation
}

// --------------------------------------------------------------------------
// Shared helpers for engines
// --------------------------------------------------------------------------

// ReplaceFile creates a temporary file next to path, lets fill write it and
// renames it over path once fill succeeded. The temporary file is removed on
// any error.
func ReplaceFile(path string, fill func(tmpPath string) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := fill(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	// persist the rename itself, not supported on every platform
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
