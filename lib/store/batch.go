package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dCtl/lib/db"
)

// --------------------------------------------------------------------------
// Batch application (shared by lstore and the raft state machine)
// --------------------------------------------------------------------------

// ReadRevision returns the revision stored in database, zero if none was written yet
func ReadRevision(database db.KVDB) (uint64, error) {
	v, ok := database.Get(RevisionKey)
	if !ok {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, NewError(RetCInternalError, fmt.Sprintf("corrupt revision value (%d bytes)", len(v)))
	}
	return binary.BigEndian.Uint64(v), nil
}

// ApplyBatch checks the expected revision and applies all mutations plus the
// incremented revision as one db.Apply call. The caller must serialize calls
// for the same database.
func ApplyBatch(database db.KVDB, batch WriteBatch, writeIdx uint64) (uint64, error) {
	if !database.SupportsFeature(db.FeatureBatch | db.FeatureGet) {
		return 0, NewError(RetCUnsupportedOperation, "the db does not support atomic batches")
	}

	current, err := ReadRevision(database)
	if err != nil {
		return 0, err
	}
	if current != batch.ExpectedRevision {
		return current, conflictError(batch.ExpectedRevision, current)
	}

	ops := make([]db.Op, 0, len(batch.Mutations)+1)
	for _, m := range batch.Mutations {
		if m.Key == RevisionKey {
			return current, NewError(RetCInvalidOperation, "the revision key can not be written directly")
		}
		if m.Delete {
			ops = append(ops, db.Op{Type: db.OpDelete, Key: m.Key})
		} else {
			ops = append(ops, db.Op{Type: db.OpSet, Key: m.Key, Value: m.Value})
		}
	}

	next := current + 1
	rev := make([]byte, 8)
	binary.BigEndian.PutUint64(rev, next)
	ops = append(ops, db.Op{Type: db.OpSet, Key: RevisionKey, Value: rev})

	if err := database.Apply(ops, writeIdx); err != nil {
		return current, NewError(RetCInternalError, err.Error())
	}
	return next, nil
}

// --------------------------------------------------------------------------
// Binary encoding of mutations
// --------------------------------------------------------------------------

// EncodeMutations serializes mutations with the format:
// 4 bytes count, then per mutation
// 1 byte delete flag,
// 4 bytes key length, N bytes key,
// 4 bytes value length, N bytes value
func EncodeMutations(mutations []Mutation) []byte {
	size := 4
	for _, m := range mutations {
		size += 1 + 4 + len(m.Key) + 4 + len(m.Value)
	}

	result := make([]byte, size)
	binary.BigEndian.PutUint32(result[0:4], uint32(len(mutations)))
	pos := 4
	for _, m := range mutations {
		if m.Delete {
			result[pos] = 1
		}
		pos++

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(m.Key)))
		pos += 4
		copy(result[pos:], m.Key)
		pos += len(m.Key)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(m.Value)))
		pos += 4
		copy(result[pos:], m.Value)
		pos += len(m.Value)
	}
	return result
}

// DecodeMutations is the inverse of EncodeMutations
func DecodeMutations(data []byte) ([]Mutation, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for mutation count")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	pos := 4

	mutations := make([]Mutation, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+5 > len(data) {
			return nil, fmt.Errorf("data too short for mutation %d header", i)
		}
		m := Mutation{Delete: data[pos] == 1}
		pos++

		keyLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+keyLen+4 > len(data) {
			return nil, fmt.Errorf("data too short for key of mutation %d", i)
		}
		m.Key = string(data[pos : pos+keyLen])
		pos += keyLen

		valueLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+valueLen > len(data) {
			return nil, fmt.Errorf("data too short for value of mutation %d", i)
		}
		if !m.Delete {
			m.Value = make([]byte, valueLen)
			copy(m.Value, data[pos:pos+valueLen])
		}
		pos += valueLen

		mutations = append(mutations, m)
	}
	return mutations, nil
}
