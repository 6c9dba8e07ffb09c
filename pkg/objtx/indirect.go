package objtx

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/schema"
)

// Indirect is a lazy by-reference field: a saver writes
// only the referenced object's OID, not its content, so loading the
// containing object never cascades into loading everything it points
// to. A zero Indirect[T] is a valid "no reference" value.
type Indirect[T any] struct {
	id       oid.OID
	resolved T
	has      bool
}

// indirection is how Store and Delete recognize an Indirect without
// knowing its type parameter: a wrapper bound to an OID is handled by
// reference, one holding only a live target is unwrapped to the value.
type indirection interface {
	indirectOID() oid.OID
	indirectTarget() (any, bool)
	bindOID(id oid.OID)
}

func (i *Indirect[T]) indirectOID() oid.OID { return i.id }

func (i *Indirect[T]) indirectTarget() (any, bool) {
	if !i.has {
		return nil, false
	}
	return any(i.resolved), true
}

func (i *Indirect[T]) bindOID(id oid.OID) { i.id = id }

// ByRef wraps an already-known OID without touching the transaction;
// the referenced object is materialized the first time Resolve is
// called.
func ByRef[T any](id oid.OID) Indirect[T] {
	return Indirect[T]{id: id}
}

// ByValue wraps a live object directly, skipping a round trip through
// the identity map for callers that already hold the value (e.g.
// immediately after constructing it). The object still needs an OID
// before it can be saved; OID resolves that lazily by storing v.
func ByValue[T any](v T) Indirect[T] {
	return Indirect[T]{resolved: v, has: true}
}

// IsZero reports whether this reference points at nothing.
func (i Indirect[T]) IsZero() bool {
	return i.id == 0 && !i.has
}

// OID returns the referenced object's id, storing the wrapped value
// first if it has never been persisted.
func (i *Indirect[T]) OID(t *Transaction) (oid.OID, error) {
	if i.id != 0 {
		return i.id, nil
	}
	if !i.has {
		return 0, nil
	}
	id, err := t.Store(any(i.resolved))
	if err != nil {
		return 0, fmt.Errorf("objtx: storing indirect reference: %w", err)
	}
	i.id = id
	return id, nil
}

// Resolve materializes the referenced object, caching it on the wrapper
// so repeated calls in the same transaction skip the key-value read.
func (i *Indirect[T]) Resolve(t *Transaction) (T, error) {
	var zero T
	if i.has {
		return i.resolved, nil
	}
	if i.id == 0 {
		return zero, nil
	}
	obj, err := t.Get(i.id)
	if err != nil {
		return zero, err
	}
	if obj == nil {
		return zero, nil
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("objtx: indirect reference %s holds %T, not expected type", i.id, obj)
	}
	i.resolved = typed
	i.has = true
	return typed, nil
}

// WriteOID appends id's varint encoding to w, the wire form an Indirect
// field's saver should use instead of WriteInline.
func WriteOID(w schema.Writer, id oid.OID) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(id))
	_, err := w.Write(tmp[:n])
	return err
}

// ReadOID decodes a varint OID written by WriteOID.
func ReadOID(r schema.Reader) (oid.OID, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		return 0, fmt.Errorf("objtx: reader does not support byte-at-a-time reads required to decode an OID")
	}
	v, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, fmt.Errorf("objtx: truncated oid field: %w", err)
	}
	return oid.OID(v), nil
}
