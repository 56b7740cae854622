package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/pstore/lib/db"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	metaBucket  = []byte("meta")  // format version and record count
	usersBucket = []byte("users") // one entry per user, keyed by insertion sequence
)

// Meta keys
var (
	metaVersion = []byte("version")
	metaCount   = []byte("count")
)

const (
	boltVersion = 1
	openTimeout = time.Second
)

// boltImpl implements db.ISnapshotDB on top of a bbolt database file.
// Every Save builds a fresh database in a temporary file and renames it over
// the previous snapshot, so the file is never modified in place.
type boltImpl struct{}

// NewBoltDB creates a new bbolt backed snapshot engine
func NewBoltDB() db.ISnapshotDB {
	return &boltImpl{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.ISnapshotDB)
// --------------------------------------------------------------------------

func (b *boltImpl) Implementation() db.Implementation {
	return db.ImplBolt
}

func (b *boltImpl) Save(path string, records []db.Record) error {
	return db.ReplaceFile(path, func(tmpPath string) error {
		bdb, err := bolt.Open(tmpPath, 0600, &bolt.Options{Timeout: openTimeout})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		err = bdb.Update(func(tx *bolt.Tx) error {
			meta, err := tx.CreateBucket(metaBucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", metaBucket, err)
			}
			users, err := tx.CreateBucket(usersBucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", usersBucket, err)
			}

			// keys are appended in ascending order
			users.FillPercent = 1.0

			for i, rec := range records {
				if err := users.Put(sequenceKey(uint64(i)), encodeRecord(rec)); err != nil {
					return err
				}
			}

			if err := meta.Put(metaVersion, []byte{boltVersion}); err != nil {
				return err
			}
			count := make([]byte, 8)
			binary.BigEndian.PutUint64(count, uint64(len(records)))
			return meta.Put(metaCount, count)
		})
		if err != nil {
			_ = bdb.Close()
			return err
		}

		return bdb.Close()
	})
}

func (b *boltImpl) Load(path string) ([]db.Record, error) {
	// bbolt would create a missing file, report it like the other engines instead
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	defer bdb.Close()

	var records []db.Record
	err = bdb.View(func(tx *bolt.Tx) error {
		// a file shorter than the high water mark is truncated, its pages must not be touched
		if tx.Size() > info.Size() {
			return fmt.Errorf("database file is truncated (%d of %d bytes)", info.Size(), tx.Size())
		}

		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return fmt.Errorf("meta bucket not found")
		}
		version := meta.Get(metaVersion)
		if len(version) != 1 || version[0] != boltVersion {
			return fmt.Errorf("unsupported version: %v (expected %d)", version, boltVersion)
		}
		countBytes := meta.Get(metaCount)
		if len(countBytes) != 8 {
			return fmt.Errorf("record count not found")
		}
		count := binary.BigEndian.Uint64(countBytes)

		users := tx.Bucket(usersBucket)
		if users == nil {
			return fmt.Errorf("users bucket not found")
		}

		records = make([]db.Record, 0, min(count, 1024))
		err := users.ForEach(func(k, v []byte) error {
			// the values are only valid during the transaction, decodeRecord copies them
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return err
		}

		if uint64(len(records)) != count {
			return fmt.Errorf("record count mismatch: found %d, expected %d", len(records), count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// sequenceKey encodes i big endian so byte order equals insertion order
func sequenceKey(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}

// encodeRecord encodes a record as len(u).u.len(p).p.content
func encodeRecord(rec db.Record) []byte {
	buf := make([]byte, 0, 8+len(rec.Username)+len(rec.Password)+len(rec.Content))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Username)))
	buf = append(buf, rec.Username...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Password)))
	buf = append(buf, rec.Password...)
	buf = append(buf, rec.Content...)
	return buf
}

// decodeRecord is the inverse of encodeRecord, the returned slices do not alias data
func decodeRecord(data []byte) (db.Record, error) {
	var rec db.Record
	offset := 0

	readField := func(name string) ([]byte, error) {
		if len(data)-offset < 4 {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if len(data)-offset < n {
			return nil, fmt.Errorf("data too short for %s", name)
		}
		field := make([]byte, n)
		copy(field, data[offset:offset+n])
		offset += n
		return field, nil
	}

	var err error
	if rec.Username, err = readField("username"); err != nil {
		return rec, err
	}
	if rec.Password, err = readField("password"); err != nil {
		return rec, err
	}
	if offset < len(data) {
		rec.Content = make([]byte, len(data)-offset)
		copy(rec.Content, data[offset:])
	}
	return rec, nil
}
