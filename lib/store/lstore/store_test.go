package lstore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/pstore/lib/db"
	"github.com/ValentinKolb/pstore/lib/db/engines/binfile"
	"github.com/ValentinKolb/pstore/lib/db/engines/bolt"
	"github.com/ValentinKolb/pstore/lib/store"
)

// testFactories is a map of snapshot engine name to factory function
var testFactories = map[string]store.DBFactory{
	"BinFile": func() db.ISnapshotDB { return binfile.NewBinFileDB() },
	"Bolt":    func() db.ISnapshotDB { return bolt.NewBoltDB() },
}

func newTestStore() store.IStore {
	return NewLocalStore(testFactories["BinFile"])
}

func b(s string) []byte { return []byte(s) }

// mustRegister registers a user and fails the test on error
func mustRegister(t *testing.T, s store.IStore, username, password string) {
	t.Helper()
	if err := s.Register(b(username), b(password)); err != nil {
		t.Fatalf("Failed to register %s: %v", username, err)
	}
}

func TestRegisterUniqueness(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "pw")

	if err := s.SetContent(b("alice"), b("pw"), b("original")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	err := s.Register(b("alice"), b("other"))
	if !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("Expected ErrUserExists, got %v", err)
	}

	// original password and content are unchanged
	if err := s.Authenticate(b("alice"), b("pw")); err != nil {
		t.Errorf("Original password should still be valid: %v", err)
	}
	if err := s.Authenticate(b("alice"), b("other")); !errors.Is(err, store.ErrLogin) {
		t.Errorf("Second password must not be accepted, got %v", err)
	}
	data, err := s.GetContent(b("alice"), b("pw"), b("alice"))
	if err != nil || !bytes.Equal(data, b("original")) {
		t.Errorf("Expected original content, got %q (%v)", data, err)
	}
}

func TestAuthGating(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "pw")
	mustRegister(t, s, "bob", "q")

	cases := map[string]func() error{
		"SetContent": func() error { return s.SetContent(b("alice"), b("wrong"), b("x")) },
		"GetContent(existing)": func() error {
			_, err := s.GetContent(b("alice"), b("wrong"), b("bob"))
			return err
		},
		"GetContent(missing)": func() error {
			_, err := s.GetContent(b("alice"), b("wrong"), b("nobody"))
			return err
		},
		"ListUsers": func() error {
			_, err := s.ListUsers(b("alice"), b("wrong"))
			return err
		},
		"UnknownUser": func() error {
			_, err := s.ListUsers(b("nobody"), b("pw"))
			return err
		},
		"PasswordPrefix": func() error { return s.Authenticate(b("alice"), b("p")) },
	}

	for name, op := range cases {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, store.ErrLogin) {
				t.Errorf("Expected ErrLogin, got %v", err)
			}
		})
	}
}

func TestContentScenarios(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "pw1")

	// content never set
	_, err := s.GetContent(b("alice"), b("pw1"), b("alice"))
	if !errors.Is(err, store.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}

	// set then get
	if err := s.SetContent(b("alice"), b("pw1"), b("hello")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data, err := s.GetContent(b("alice"), b("pw1"), b("alice"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(data, b("hello")) {
		t.Errorf("Expected hello, got %q", data)
	}

	// unknown target
	_, err = s.GetContent(b("alice"), b("pw1"), b("bob"))
	if !errors.Is(err, store.ErrNoUser) {
		t.Errorf("Expected ErrNoUser, got %v", err)
	}

	// clearing content
	if err := s.SetContent(b("alice"), b("pw1"), nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, err = s.GetContent(b("alice"), b("pw1"), b("alice"))
	if !errors.Is(err, store.ErrNoData) {
		t.Errorf("Expected ErrNoData after clearing, got %v", err)
	}
}

func TestReturnedContentIsCopy(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "pw")

	input := b("hello")
	_ = s.SetContent(b("alice"), b("pw"), input)
	input[0] = 'X'

	data, _ := s.GetContent(b("alice"), b("pw"), b("alice"))
	data[1] = 'Y'

	again, _ := s.GetContent(b("alice"), b("pw"), b("alice"))
	if !bytes.Equal(again, b("hello")) {
		t.Errorf("Stored content was modified through a caller slice: %q", again)
	}
}

func TestListUsers(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "p")
	mustRegister(t, s, "bob", "q")

	list, err := s.ListUsers(b("alice"), b("p"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(list) != "alice\nbob" {
		t.Errorf("Expected %q, got %q", "alice\nbob", list)
	}

	// registration order, not sorted
	mustRegister(t, s, "aaron", "r")
	list, _ = s.ListUsers(b("bob"), b("q"))
	if string(list) != "alice\nbob\naaron" {
		t.Errorf("Expected registration order, got %q", list)
	}

	// read only operations do not change anything
	again, _ := s.ListUsers(b("bob"), b("q"))
	if !bytes.Equal(list, again) {
		t.Errorf("ListUsers is not idempotent: %q vs %q", list, again)
	}

	if s.Len() != 3 {
		t.Errorf("Expected 3 users, got %d", s.Len())
	}
}

func TestConcurrentRegister(t *testing.T) {
	s := newTestStore()

	numWorkers := 32
	var wins atomic.Int32
	var losses atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Register(b("racer"), b(fmt.Sprintf("pw-%d", i)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrUserExists):
				losses.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly one successful registration, got %d", wins.Load())
	}
	if losses.Load() != int32(numWorkers-1) {
		t.Errorf("Expected %d ErrUserExists, got %d", numWorkers-1, losses.Load())
	}
	if s.Len() != 1 {
		t.Errorf("Expected one user, got %d", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore()
	dir := t.TempDir()

	numUsers := 16
	for i := 0; i < numUsers; i++ {
		mustRegister(t, s, fmt.Sprintf("user-%d", i), "pw")
	}

	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := b(fmt.Sprintf("user-%d", i))
			for j := 0; j < 50; j++ {
				value := b(fmt.Sprintf("value-%d-%d", i, j))
				if err := s.SetContent(name, b("pw"), value); err != nil {
					t.Errorf("SetContent failed: %v", err)
					return
				}
				data, err := s.GetContent(name, b("pw"), name)
				if err != nil || !bytes.Equal(data, value) {
					t.Errorf("Expected %q, got %q (%v)", value, data, err)
					return
				}
				if _, err := s.ListUsers(name, b("pw")); err != nil {
					t.Errorf("ListUsers failed: %v", err)
					return
				}
				if j%10 == 0 {
					if err := s.Persist(filepath.Join(dir, "users.db")); err != nil {
						t.Errorf("Persist failed: %v", err)
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestPersistLoad(t *testing.T) {
	for name, factory := range testFactories {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users.db")

			s := NewLocalStore(factory)
			mustRegister(t, s, "alice", "p")
			mustRegister(t, s, "bob", "q")
			mustRegister(t, s, "carol", "r")
			_ = s.SetContent(b("alice"), b("p"), b("hello"))
			_ = s.SetContent(b("carol"), b("r"), bytes.Repeat(b("z"), 4096))

			if err := s.Persist(path); err != nil {
				t.Fatalf("Persist failed: %v", err)
			}

			restored := NewLocalStore(factory)
			if err := restored.Load(path); err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			list, err := restored.ListUsers(b("bob"), b("q"))
			if err != nil || string(list) != "alice\nbob\ncarol" {
				t.Errorf("Expected restored list, got %q (%v)", list, err)
			}

			data, err := restored.GetContent(b("bob"), b("q"), b("alice"))
			if err != nil || !bytes.Equal(data, b("hello")) {
				t.Errorf("Expected restored content, got %q (%v)", data, err)
			}

			if _, err := restored.GetContent(b("alice"), b("p"), b("bob")); !errors.Is(err, store.ErrNoData) {
				t.Errorf("Expected ErrNoData for bob, got %v", err)
			}

			if err := restored.Register(b("alice"), b("x")); !errors.Is(err, store.ErrUserExists) {
				t.Errorf("Restored users must stay unique, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "p")

	err := s.Load(filepath.Join(t.TempDir(), "missing.db"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Expected fs.ErrNotExist, got %v", err)
	}

	// table is untouched
	if s.Len() != 1 {
		t.Errorf("Expected table to be unchanged, got %d users", s.Len())
	}
}

func TestPersistFailure(t *testing.T) {
	s := newTestStore()
	mustRegister(t, s, "alice", "p")

	err := s.Persist(filepath.Join(t.TempDir(), "missing-dir", "users.db"))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCInternalError {
		t.Errorf("Expected internal store error, got %v", err)
	}
}
