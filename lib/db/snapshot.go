package db

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Snapshot format (shared by all engines)
// --------------------------------------------------------------------------

// Snapshots written by one engine can be loaded by every other engine. This is
// used by the raft state machine, where replicas may run different engines.
//
// Layout (little endian):
//
//	8 bytes  magic "DCTLDB\x00\x00"
//	1 byte   version
//	8 bytes  write index
//	8 bytes  entry count
//	per entry: 4 bytes key length, key, 4 bytes value length, value
const (
	snapshotMagic   = "DCTLDB\x00\x00"
	snapshotVersion = 1
)

// KV is a single key value pair
type KV struct {
	Key   string
	Value []byte
}

// WriteSnapshot writes entries to w using the shared snapshot layout
func WriteSnapshot(w io.Writer, writeIdx uint64, entries []KV) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, writeIdx); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(e.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadSnapshot reads a snapshot and calls fn for every entry.
// It returns the write index stored in the snapshot.
func ReadSnapshot(r io.Reader, fn func(key string, value []byte) error) (uint64, error) {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return 0, err
	}
	if string(magicBytes) != snapshotMagic {
		return 0, fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if version != snapshotVersion {
		return 0, fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	var writeIdx, count uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return 0, err
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return 0, err
	}

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return 0, err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return 0, err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return 0, err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return 0, err
		}

		if err := fn(string(key), value); err != nil {
			return 0, err
		}
	}

	return writeIdx, nil
}
