/*
Package kv defines the ordered byte-key store contract the object
transaction manager is built against. It deliberately knows nothing
about objects, tables, or schemas: it is the "external collaborator"
boundary described by the transaction manager's design — an ordered
key-value engine with cursors, prefix scoping, exact and relative
lookup, and commit/rollback semantics.

The only implementation shipped in this module is pkg/kv/boltkv, backed
by go.etcd.io/bbolt, but pkg/objtx never imports boltkv directly: it is
wired through these interfaces so any ordered byte-key engine could be
substituted.
*/
package kv

import "errors"

// FindResult describes the outcome of a relative (seek-like) find.
type FindResult int

const (
	// NotFound means no key at or after the seek key exists.
	NotFound FindResult = iota
	// Exact means the seek key itself was present.
	Exact
	// Previous means the seek key was absent but the cursor landed on
	// the next key in order. No method in this package returns a
	// FindResult; Cursor.Seek reports only whether it landed on a key.
	Previous
)

// ErrTxClosed is returned by any operation attempted after Commit or
// Rollback has already been called on a transaction.
var ErrTxClosed = errors.New("kv: transaction is closed")

// ErrReadOnly is returned when a mutating operation is attempted on a
// read-only transaction.
var ErrReadOnly = errors.New("kv: transaction is read-only")

// Cursor walks a single bucket (prefix) in key order.
type Cursor interface {
	// First positions the cursor at the smallest key and returns it.
	First() (k, v []byte, ok bool)
	// Seek positions the cursor at the smallest key >= key.
	Seek(key []byte) (k, v []byte, ok bool)
	// Next advances the cursor and returns the new position.
	Next() (k, v []byte, ok bool)
}

// Tx is a read-only view of the store, valid until the owner's
// transaction ends.
type Tx interface {
	// Get performs an exact lookup within a bucket.
	Get(bucket, key []byte) (value []byte, found bool, err error)
	// Cursor opens a cursor over a bucket.
	Cursor(bucket []byte) (Cursor, error)
	// TxNumber returns the monotonic snapshot identifier assigned to
	// this transaction by the engine.
	TxNumber() uint64
	// IsReadOnly reports whether mutating calls are permitted.
	IsReadOnly() bool
}

// TransactionLogCloser is an optional capability of RwTx: an engine
// that appends commits to a log file can close and reopen that file at
// a commit boundary, bounding the current segment's size. Called only
// after Commit has returned successfully. Engines without a log file
// (bbolt writes in place) simply do not implement it.
type TransactionLogCloser interface {
	CloseTransactionLog() error
}

// RwTx is a Tx that may also mutate the store and commit or roll back.
type RwTx interface {
	Tx

	// Put creates or updates a key.
	Put(bucket, key, value []byte) error
	// Delete erases a single key; it is not an error if the key is
	// already absent.
	Delete(bucket, key []byte) error
	// DeletePrefix erases every key in a bucket. It models the engine's
	// "erase whole bucket" primitive used by DeleteAllData.
	DeletePrefix(bucket []byte) error

	// Commit durably persists every write made on this transaction and
	// releases it. After Commit, the transaction must not be used again.
	Commit() error
	// Rollback discards every write made on this transaction and
	// releases it. Safe to call after a failed Commit or instead of one.
	Rollback() error
}
