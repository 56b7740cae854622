// Package lstore implements the store.IStore interface as a local, in-memory
// profile table.
//
// Key Features:
//   - Users are kept in a map for lookups and in a slice for registration order
//   - A single read/write mutex makes every operation atomic, read only operations
//     (GetContent, ListUsers, Authenticate) run concurrently
//   - Passwords are compared in constant time
//   - Persistence through any db.ISnapshotDB engine injected with a store.DBFactory
//
// Implementation Details:
//
//   - Content is never modified in place. SetContent stores a copy of the data and
//     GetContent returns a copy, so Persist can collect the rows under the read
//     lock and write the snapshot without blocking writers.
//
//   - Concurrent Persist calls are serialized, the snapshot taken last is the one
//     that ends up on disk.
//
//   - Load replaces the complete table and is meant to run once at startup.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(func() db.ISnapshotDB { return binfile.NewBinFileDB() })
//	if err := s.Register([]byte("alice"), []byte("pw")); err != nil {
//		// errors.Is(err, store.ErrUserExists)
//	}
//	err := s.SetContent([]byte("alice"), []byte("pw"), []byte("hello"))
//	data, err := s.GetContent([]byte("alice"), []byte("pw"), []byte("alice"))
package lstore
