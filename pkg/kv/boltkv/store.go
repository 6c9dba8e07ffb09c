package boltkv

import (
	"fmt"

	"github.com/cuemby/objstore/pkg/kv"
	bolt "go.etcd.io/bbolt"
)

// Buckets lists every key-space prefix the object transaction core
// writes into. They are created up front so that a transaction never
// has to special-case a missing bucket.
var Buckets = [][]byte{
	[]byte("AllObjects"),
	[]byte("TableNames"),
	[]byte("TableVersions"),
	[]byte("TableSingletons"),
	[]byte("AllDictionaries"),
	[]byte("AllRelationsPK"),
	[]byte("AllRelationsSK"),
	[]byte("Meta"),
}

// Store is a bbolt-backed implementation of an ordered byte-key engine.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a bbolt file at path and ensures every known
// bucket exists, matching the teacher's NewBoltStore bucket bootstrap.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range Buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("boltkv: failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a new transaction. Exactly one writable transaction may
// be open at a time; bbolt enforces this by blocking a second db.Update
// call until the first finishes, so the caller of Begin(true) may block.
func (s *Store) Begin(writable bool) (kv.RwTx, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("boltkv: failed to begin transaction: %w", err)
	}
	return &tx{btx: btx, writable: writable}, nil
}

type tx struct {
	btx      *bolt.Tx
	writable bool
	done     bool
}

func (t *tx) bucket(name []byte) (*bolt.Bucket, error) {
	b := t.btx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("boltkv: unknown bucket %q", name)
	}
	return b, nil
}

func (t *tx) Get(bucket, key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, kv.ErrTxClosed
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *tx) Cursor(bucket []byte) (kv.Cursor, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	return &cursor{c: b.Cursor()}, nil
}

func (t *tx) TxNumber() uint64 {
	return uint64(t.btx.ID())
}

func (t *tx) IsReadOnly() bool {
	return !t.writable
}

func (t *tx) Put(bucket, key, value []byte) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *tx) Delete(bucket, key []byte) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

func (t *tx) DeletePrefix(bucket []byte) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	if err := t.btx.DeleteBucket(bucket); err != nil {
		return fmt.Errorf("boltkv: failed to erase bucket %s: %w", bucket, err)
	}
	_, err := t.btx.CreateBucket(bucket)
	return err
}

func (t *tx) Commit() error {
	if t.done {
		return kv.ErrTxClosed
	}
	t.done = true
	return t.btx.Commit()
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.btx.Rollback()
}

type cursor struct {
	c *bolt.Cursor
}

func (c *cursor) First() (k, v []byte, ok bool) {
	k, v = c.c.First()
	return k, v, k != nil
}

func (c *cursor) Seek(key []byte) (k, v []byte, ok bool) {
	k, v = c.c.Seek(key)
	return k, v, k != nil
}

func (c *cursor) Next() (k, v []byte, ok bool) {
	k, v = c.c.Next()
	return k, v, k != nil
}
