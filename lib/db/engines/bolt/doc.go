// Package bolt implements db.ISnapshotDB on top of bbolt (go.etcd.io/bbolt).
//
// A snapshot is a complete bbolt database with two buckets:
//   - meta: format version and record count
//   - users: one value per user, keyed by its 8 byte big endian insertion sequence
//
// Save always builds a new database file and atomically renames it into place.
// Load opens the file read only.
package bolt
