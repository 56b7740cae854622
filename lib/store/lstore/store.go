package lstore

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/ValentinKolb/pstore/lib/db"
	"github.com/ValentinKolb/pstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// user is one row of the table. Content is replaced, never modified in place,
// so slices may be handed to snapshots while only holding the read lock.
type user struct {
	username []byte
	password []byte
	content  []byte
}

type storeImpl struct {
	mu    sync.RWMutex
	users map[string]*user
	order []*user // registration order

	persistMu sync.Mutex // serializes Persist so the newest snapshot wins
	db        db.ISnapshotDB
}

// NewLocalStore creates a new local store instance.
// The table lives in memory, the snapshot engine created by factory is only
// used by Persist and Load.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		users: make(map[string]*user),
		db:    factory(),
	}
}

// lookup authenticates the caller and returns its row.
//
// Thread-safety: the caller must hold s.mu (read or write).
func (s *storeImpl) lookup(username, password []byte) (*user, error) {
	u, ok := s.users[string(username)]
	if !ok {
		return nil, store.ErrLogin
	}
	if subtle.ConstantTimeCompare(u.password, password) != 1 {
		return nil, store.ErrLogin
	}
	return u, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Register(username, password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[string(username)]; exists {
		return store.ErrUserExists
	}

	u := &user{
		username: bytes.Clone(username),
		password: bytes.Clone(password),
	}
	s.users[string(username)] = u
	s.order = append(s.order, u)
	return nil
}

func (s *storeImpl) Authenticate(username, password []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.lookup(username, password)
	return err
}

func (s *storeImpl) SetContent(username, password, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.lookup(username, password)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		u.content = nil
	} else {
		u.content = bytes.Clone(data)
	}
	return nil
}

func (s *storeImpl) GetContent(username, password, target []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.lookup(username, password); err != nil {
		return nil, err
	}

	t, ok := s.users[string(target)]
	if !ok {
		return nil, store.ErrNoUser
	}
	if len(t.content) == 0 {
		return nil, store.ErrNoData
	}
	return bytes.Clone(t.content), nil
}

func (s *storeImpl) ListUsers(username, password []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.lookup(username, password); err != nil {
		return nil, err
	}

	names := make([][]byte, len(s.order))
	for i, u := range s.order {
		names[i] = u.username
	}
	return bytes.Join(names, []byte{'\n'}), nil
}

func (s *storeImpl) Persist(path string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	records := make([]db.Record, len(s.order))
	for i, u := range s.order {
		records[i] = db.Record{Username: u.username, Password: u.password, Content: u.content}
	}
	s.mu.RUnlock()

	if err := s.db.Save(path, records); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("failed to persist table: %v", err))
	}

	Logger.Infof("persisted %d users to %s (%s)", len(records), path, s.db.Implementation())
	return nil
}

func (s *storeImpl) Load(path string) error {
	records, err := s.db.Load(path)
	if err != nil {
		return err
	}

	users := make(map[string]*user, len(records))
	order := make([]*user, 0, len(records))
	for i, rec := range records {
		if len(rec.Username) == 0 {
			return fmt.Errorf("snapshot %s: record %d has an empty username", path, i)
		}
		if _, dup := users[string(rec.Username)]; dup {
			return fmt.Errorf("snapshot %s: duplicate username %q", path, rec.Username)
		}
		u := &user{username: rec.Username, password: rec.Password}
		if len(rec.Content) > 0 {
			u.content = rec.Content
		}
		users[string(rec.Username)] = u
		order = append(order, u)
	}

	s.mu.Lock()
	s.users = users
	s.order = order
	s.mu.Unlock()

	Logger.Infof("loaded %d users from %s (%s)", len(order), path, s.db.Implementation())
	return nil
}

func (s *storeImpl) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
