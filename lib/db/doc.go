// Package db provides a standardized interface for snapshot engines that persist
// the profile table to disk.
//
// The package focuses on:
//   - A unified interface (ISnapshotDB) for saving and loading the full table
//   - Atomic file replacement shared by all engines (ReplaceFile)
//   - Implementation identifiers used by the configuration layer
//
// Key Components:
//
//   - ISnapshotDB Interface: Save writes a complete snapshot and atomically
//     replaces the previous one, Load restores the records in their original
//     insertion order.
//
//   - Record: One user row (username, password, content). The store converts its
//     in-memory table to records and back, engines never see the store's locks.
//
// Implementations:
//
//   - binfile: a compact little endian binary file with a magic header, a version
//     byte and a BLAKE3 checksum trailer
//     ("github.com/ValentinKolb/pstore/lib/db/engines/binfile").
//
//   - bolt: a bbolt database file with one bucket of records keyed by their
//     insertion sequence ("github.com/ValentinKolb/pstore/lib/db/engines/bolt").
//
// Both engines are tested with the shared suite in the testing subpackage.
package db
