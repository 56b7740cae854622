// Package store provides the interface of the authenticated profile table and
// its unified error handling.
//
// The package focuses on:
//   - A unified interface (IStore) for registering users and reading or writing
//     their content under username/password authentication
//   - Pluggable snapshot engines through the DBFactory pattern
//
// Key Components:
//
//   - IStore Interface: Register, SetContent, GetContent and ListUsers for the
//     protocol handlers, Persist and Load for snapshots. Implementations must make
//     every operation atomic with respect to all others.
//
//   - Error System: *Error values carry a RetCode. The sentinels ErrUserExists,
//     ErrLogin, ErrNoUser and ErrNoData match any error with the same code via
//     errors.Is, which lets the protocol layer map failures to wire codes.
//
//   - DBFactory: creates the db.ISnapshotDB engine used by Persist and Load.
//
// Implementations:
//
//   - Local Store (lstore): an in-memory table guarded by a read/write mutex.
//     Available in the "github.com/ValentinKolb/pstore/lib/store/lstore" package.
package store
