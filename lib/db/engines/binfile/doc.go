// Package binfile implements db.ISnapshotDB with a compact binary file.
//
// The file starts with the magic "PSTOREDB" and a version byte, followed by the
// record count and the length prefixed fields of each record. A BLAKE3-256
// checksum over everything before it terminates the file, Load rejects files
// whose checksum does not match or that carry data after the trailer.
//
// Snapshots are written to a temporary file and renamed over the target, see
// db.ReplaceFile.
package binfile
