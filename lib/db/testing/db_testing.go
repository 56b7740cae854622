package testing

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/pstore/lib/db"
)

// DBFactory is a function that creates a new instance of an ISnapshotDB implementation
type DBFactory func() db.ISnapshotDB

// RunSnapshotDBTests runs a comprehensive test suite for an ISnapshotDB implementation.
func RunSnapshotDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory())
		})

		t.Run("Empty", func(t *testing.T) {
			testEmpty(t, factory())
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, factory())
		})

		t.Run("MissingFile", func(t *testing.T) {
			testMissingFile(t, factory())
		})

		t.Run("CorruptFile", func(t *testing.T) {
			testCorruptFile(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("NoLeftoverTempFiles", func(t *testing.T) {
			testNoLeftoverTempFiles(t, factory())
		})

		t.Run("CrossInstance", func(t *testing.T) {
			testCrossInstance(t, factory)
		})

		t.Run("ConcurrentLoad", func(t *testing.T) {
			testConcurrentLoad(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// makeRecords creates n deterministic records, every third one without content
func makeRecords(n int) []db.Record {
	records := make([]db.Record, n)
	for i := 0; i < n; i++ {
		records[i] = db.Record{
			Username: []byte(fmt.Sprintf("user-%d", i)),
			Password: []byte(fmt.Sprintf("password-%d", i)),
		}
		if i%3 != 0 {
			records[i].Content = []byte(fmt.Sprintf("content-of-user-%d", i))
		}
	}
	return records
}

// requireEqualRecords compares two record lists including their order
func requireEqualRecords(t *testing.T, expected, actual []db.Record) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("Expected %d records, got %d", len(expected), len(actual))
	}

	for i := range expected {
		if !bytes.Equal(expected[i].Username, actual[i].Username) {
			t.Errorf("Record %d: expected username %q, got %q", i, expected[i].Username, actual[i].Username)
		}
		if !bytes.Equal(expected[i].Password, actual[i].Password) {
			t.Errorf("Record %d: expected password %q, got %q", i, expected[i].Password, actual[i].Password)
		}
		// nil and empty content are equivalent
		if !bytes.Equal(expected[i].Content, actual[i].Content) {
			t.Errorf("Record %d: expected content %q, got %q", i, expected[i].Content, actual[i].Content)
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSaveLoad(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "users.db")

	records := makeRecords(1000)
	if err := database.Save(path, records); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	loaded, err := database.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	requireEqualRecords(t, records, loaded)
}

func testEmpty(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "empty.db")

	if err := database.Save(path, nil); err != nil {
		t.Fatalf("Unexpected error saving empty snapshot: %v", err)
	}

	loaded, err := database.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error loading empty snapshot: %v", err)
	}

	if len(loaded) != 0 {
		t.Errorf("Expected no records, got %d", len(loaded))
	}
}

func testOverwrite(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "users.db")

	if err := database.Save(path, makeRecords(50)); err != nil {
		t.Fatalf("Unexpected error during first Save: %v", err)
	}

	second := makeRecords(5)
	second[1].Content = []byte("changed")
	if err := database.Save(path, second); err != nil {
		t.Fatalf("Unexpected error during second Save: %v", err)
	}

	loaded, err := database.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	requireEqualRecords(t, second, loaded)
}

func testMissingFile(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "does-not-exist.db")

	_, err := database.Load(path)
	if err == nil {
		t.Fatalf("Expected error when loading missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected error wrapping fs.ErrNotExist, got %v", err)
	}
}

func testCorruptFile(t *testing.T, database db.ISnapshotDB) {
	dir := t.TempDir()

	// garbage content
	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, bytes.Repeat([]byte{0xAB}, 4096), 0600); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}
	if _, err := database.Load(garbage); err == nil {
		t.Errorf("Expected error when loading garbage file")
	}

	// truncated snapshot
	valid := filepath.Join(dir, "valid.db")
	if err := database.Save(valid, makeRecords(20)); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	data, err := os.ReadFile(valid)
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	truncated := filepath.Join(dir, "truncated.db")
	if err := os.WriteFile(truncated, data[:len(data)/3], 0600); err != nil {
		t.Fatalf("Failed to write truncated file: %v", err)
	}
	if _, err := database.Load(truncated); err == nil {
		t.Errorf("Expected error when loading truncated file")
	}
}

func testEdgeCases(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "edge.db")

	records := []db.Record{
		// binary data with zero bytes
		{Username: []byte{0x00, 0x01, 0x02}, Password: []byte{0xFF, 0x00}, Content: []byte{0x00}},
		// large content
		{Username: []byte("large"), Password: []byte("p"), Content: bytes.Repeat([]byte("x"), 1024*1024)},
		// unicode
		{Username: []byte("ユーザー"), Password: []byte("パスワード"), Content: []byte("内容")},
		// no content
		{Username: []byte("empty"), Password: []byte("p")},
	}

	if err := database.Save(path, records); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	loaded, err := database.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	requireEqualRecords(t, records, loaded)
}

func testNoLeftoverTempFiles(t *testing.T, database db.ISnapshotDB) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.db")

	for i := 0; i < 3; i++ {
		if err := database.Save(path, makeRecords(10)); err != nil {
			t.Fatalf("Unexpected error during Save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "users.db" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only users.db in directory, got %v", names)
	}
}

func testCrossInstance(t *testing.T, factory DBFactory) {
	path := filepath.Join(t.TempDir(), "users.db")

	records := makeRecords(100)
	if err := factory().Save(path, records); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	loaded, err := factory().Load(path)
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	requireEqualRecords(t, records, loaded)
}

func testConcurrentLoad(t *testing.T, database db.ISnapshotDB) {
	path := filepath.Join(t.TempDir(), "users.db")

	records := makeRecords(200)
	if err := database.Save(path, records); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	numReaders := 8
	var wg sync.WaitGroup
	errs := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := database.Load(path)
			if err != nil {
				errs <- err
				return
			}
			if len(loaded) != len(records) {
				errs <- fmt.Errorf("expected %d records, got %d", len(records), len(loaded))
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent load failed: %v", err)
	}
}
