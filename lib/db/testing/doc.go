// Package testing provides a standardised test suite for snapshot engines that
// satisfy the db.ISnapshotDB interface.
//
// The suite checks that an engine:
//   - restores records in their original order
//   - replaces existing snapshots atomically and leaves no temporary files behind
//   - reports missing files with fs.ErrNotExist and rejects corrupt ones
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.ISnapshotDB {
//		return NewMySnapshotDB()
//	}
//
//	// Running the standard test suite
//	testing.RunSnapshotDBTests(t, "MySnapshotDB", factory)
package testing
