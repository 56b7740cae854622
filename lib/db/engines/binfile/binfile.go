package binfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/pstore/lib/db"
	"github.com/zeebo/blake3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for the file format
const (
	magicNum       = "PSTOREDB"       // File format identifier
	binfileVersion = 1                // Format version
	checksumSize   = 32               // BLAKE3-256 trailer
	maxFieldLen    = 64 * 1024 * 1024 // Upper bound for a single field, protects Load from corrupt lengths
	bufferSize     = 1024 * 1024      // 1 MB buffer
)

var ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

// binfileImpl implements db.ISnapshotDB with a flat binary file:
//
//	magic(8) . version(1) . count(u64) . count * (len(u).u.len(p).p.len(c).c) . blake3(32)
//
// All integers are little endian, lengths are u32.
type binfileImpl struct{}

// NewBinFileDB creates a new binary file snapshot engine
func NewBinFileDB() db.ISnapshotDB {
	return &binfileImpl{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.ISnapshotDB)
// --------------------------------------------------------------------------

func (b *binfileImpl) Implementation() db.Implementation {
	return db.ImplBinFile
}

func (b *binfileImpl) Save(path string, records []db.Record) error {
	return db.ReplaceFile(path, func(tmpPath string) error {
		f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}

		if err := b.write(f, records); err != nil {
			_ = f.Close()
			return err
		}

		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

func (b *binfileImpl) Load(path string) ([]db.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := b.read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// write serializes records to w, the checksum covers every byte before the trailer
func (b *binfileImpl) write(w io.Writer, records []db.Record) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, bufferSize)
	hasher := blake3.New()
	out := io.MultiWriter(bw, hasher)

	// Write file header
	if _, err := io.WriteString(out, magicNum); err != nil {
		return err
	}

	// Write version
	if err := binary.Write(out, binary.LittleEndian, uint8(binfileVersion)); err != nil {
		return err
	}

	// Write total record count
	if err := binary.Write(out, binary.LittleEndian, uint64(len(records))); err != nil {
		return err
	}

	// Write records
	for _, rec := range records {
		for _, field := range [][]byte{rec.Username, rec.Password, rec.Content} {
			if err := binary.Write(out, binary.LittleEndian, uint32(len(field))); err != nil {
				return err
			}
			if _, err := out.Write(field); err != nil {
				return err
			}
		}
	}

	// Write checksum trailer (not part of the hashed data)
	if _, err := bw.Write(hasher.Sum(nil)); err != nil {
		return err
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// read parses a snapshot written by write and verifies its checksum
func (b *binfileImpl) read(r io.Reader) ([]db.Record, error) {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, bufferSize)
	hasher := blake3.New()
	in := io.TeeReader(br, hasher)

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(in, magicBytes); err != nil {
		return nil, err
	}
	if string(magicBytes) != magicNum {
		return nil, fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(in, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if int(version) != binfileVersion {
		return nil, fmt.Errorf("unsupported version: %d (expected %d)", version, binfileVersion)
	}

	// Read record count
	var count uint64
	if err := binary.Read(in, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	records := make([]db.Record, 0, min(count, 1024))
	for i := uint64(0); i < count; i++ {
		var fields [3][]byte
		for j := range fields {
			field, err := readField(in)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			fields[j] = field
		}
		records = append(records, db.Record{
			Username: fields[0],
			Password: fields[1],
			Content:  fields[2],
		})
	}

	// Verify checksum trailer
	expected := hasher.Sum(nil)
	trailer := make([]byte, checksumSize)
	if _, err := io.ReadFull(br, trailer); err != nil {
		return nil, fmt.Errorf("missing checksum: %w", err)
	}
	if !bytes.Equal(expected, trailer) {
		return nil, ErrChecksumMismatch
	}

	// Nothing may follow the trailer
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("invalid file format: trailing data after checksum")
	}

	return records, nil
}

// readField reads a u32 length prefixed byte field
func readField(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("field length %d exceeds limit", n)
	}
	field := make([]byte, n)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, err
	}
	return field, nil
}
