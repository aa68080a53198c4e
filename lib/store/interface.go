package store

import (
	"fmt"

	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/errs"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// RevisionKey holds the revision counter of the key space (8 bytes, big endian)
const RevisionKey = "meta/revision"

// Mutation is a single change inside a WriteBatch
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// WriteBatch is an atomic, revision checked set of mutations.
// The batch only applies if the current revision of the store equals
// ExpectedRevision. On success the revision is incremented by exactly one.
type WriteBatch struct {
	ExpectedRevision uint64
	Mutations        []Mutation
}

// IStore is the durable, revisioned key space the config store persists into.
// All methods are safe for concurrent use.
type IStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store.
	Has(key string) (loaded bool, err error)
	// Scan returns all entries whose key starts with prefix, ordered by key.
	Scan(prefix string) (entries []db.KV, err error)
	// Commit applies the batch atomically if the revision still matches.
	// A stale ExpectedRevision fails with an errs.Conflict error and changes nothing.
	// The new revision is returned on success.
	Commit(batch WriteBatch) (revision uint64, err error)
	// Revision returns the current revision of the key space
	Revision() (revision uint64, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode is the numeric result of a state machine command. It travels in
// dragonboat's sm.Result.Value and is mapped to an errs.Code on the caller side.
type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCConflict                            // 4: Expected revision did not match.
)

// ErrCode maps the return code to the shared error taxonomy
func (c RetCode) ErrCode() errs.Code {
	switch c {
	case RetCUnsupportedOperation:
		return errs.Unsupported
	case RetCInvalidOperation:
		return errs.InvalidOperation
	case RetCConflict:
		return errs.Conflict
	default:
		return errs.Internal
	}
}

// RetCodeOf is the inverse of ErrCode, used by the state machine
func RetCodeOf(err error) RetCode {
	switch errs.CodeOf(err) {
	case "":
		return RetCSuccess
	case errs.Unsupported:
		return RetCUnsupportedOperation
	case errs.InvalidOperation:
		return RetCInvalidOperation
	case errs.Conflict:
		return RetCConflict
	default:
		return RetCInternalError
	}
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) error {
	return &errs.Error{
		Code: code.ErrCode(),
		Op:   "store",
		Msg:  msg,
	}
}

// conflictError reports a stale expected revision
func conflictError(expected, current uint64) error {
	return NewError(RetCConflict, fmt.Sprintf("expected revision %d, current revision is %d", expected, current))
}
