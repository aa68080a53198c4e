package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dCtl/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTBatch CommandType = iota // Apply a revision checked write batch.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTBatch:
		return "Batch"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTBatch:
		return db.FeatureBatch | db.FeatureGet, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type     CommandType
	Revision uint64 // expected revision of the key space
	Value    []byte // encoded mutations (see store.EncodeMutations)
}

const headerSize = 1 + 8 // Type + Revision

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the expected revision (big endian),
// N bytes for value data
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Revision)
	copy(result[headerSize:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Revision = binary.BigEndian.Uint64(data[1:9])

	if len(data) > headerSize {
		valueLen := len(data) - headerSize
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[headerSize:])
	} else {
		command.Value = nil
	}

	return nil
}
