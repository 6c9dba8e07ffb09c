package objtx

import (
	"fmt"
	"math"
	"reflect"

	"github.com/cuemby/objstore/pkg/oid"
)

// InlineSentinel is returned by StoreIfNotInlined to tell the caller to
// embed the value inline (via the inline codec) instead of storing it
// by reference. It is the all-ones OID, which can never be allocated by
// NextOID.
const InlineSentinel oid.OID = math.MaxUint64

// metaKeyCommitUlong holds the caller-settable commit marker GetCommitUlong/
// SetCommitUlong expose, a single free-form uint64 a caller can stamp onto a
// commit (e.g. an external log sequence number) without needing a table of
// its own.
var metaKeyCommitUlong = []byte("commit-ulong")

// New builds a zero-value instance of T's registered table, using the
// table's own Creator in preference to plain reflection, without
// assigning it an OID or tracking it in the identity map. The caller
// populates the returned value and passes it to Store (or
// StoreIfNotInlined) to actually persist it.
func New[T any](t *Transaction) (T, error) {
	var zero T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	ti, ok := t.owner.Registry().Lookup(rt)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownType, rt)
	}
	obj := ti.New()
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("objtx: table %q's Creator returned %T, not %s", ti.Name, obj, rt)
	}
	return typed, nil
}

// EnumerateSingletonTypes returns the registered type of every table that
// has materialized its singleton at least once, in table-id order.
func (t *Transaction) EnumerateSingletonTypes() []reflect.Type {
	var out []reflect.Type
	for _, ti := range t.owner.Registry().All() {
		if ti.SingletonOid != 0 {
			out = append(out, ti.Type)
		}
	}
	return out
}

// EnumerateRelationTypes returns every relation interface type with a
// factory registered on the owning database, whether registered
// explicitly by the relation subsystem or through GetRelation's
// auto-registration path.
func (t *Transaction) EnumerateRelationTypes() []reflect.Type {
	return t.owner.RelationTypes()
}

// GetOid returns the OID obj is bound to in this transaction, or 0 if obj
// has never been stored.
func (t *Transaction) GetOid(obj any) oid.OID {
	md, ok := t.identity.GetMetadata(obj)
	if !ok {
		return 0
	}
	return md.id
}

// GetStorageSize reports the encoded key and value length of the object
// with the given id as currently persisted, without materializing it.
// It returns found=false if no such object is on disk (including one
// that exists only as an uncommitted dirty object in this transaction).
func (t *Transaction) GetStorageSize(id oid.OID) (keyLen, valueLen int, found bool, err error) {
	if err := t.checkOpen(); err != nil {
		return 0, 0, false, err
	}
	key := oid.AppendEncode(nil, id)
	value, found, err := t.kvtx.Get(PrefixAllObjects, key)
	if err != nil {
		return 0, 0, false, fmt.Errorf("objtx: reading storage size of oid %s: %w", id, err)
	}
	if !found {
		return 0, 0, false, nil
	}
	return len(key), len(value), true, nil
}

// StoreAndFlush stores obj like Store, then immediately encodes and
// writes it under its key rather than waiting for Commit's drain loop.
// This is useful when a later step in the same transaction needs the
// persisted bytes to already be visible to a raw key-value read (for
// example, a relation index that reads the owner's encoded form back
// out) without forcing a full commit.
func (t *Transaction) StoreAndFlush(obj any) (oid.OID, error) {
	id, err := t.Store(obj)
	if err != nil {
		return 0, err
	}
	if err := t.storeObject(id, obj); err != nil {
		return 0, err
	}
	t.dirty.Remove(id)
	if md, ok := t.identity.GetMetadata(obj); ok {
		md.state = StateRead
	}
	return id, nil
}

// StoreIfNotInlined decides whether obj should be stored by reference
// (returning its OID) or embedded inline by the caller (returning
// InlineSentinel). A type that is not registered is never stored by
// reference: if autoRegister is false (or the owner forbids
// auto-registration), the caller is told to inline it instead of
// failing outright, matching the reference semantics in which an
// ad-hoc value type simply has no table of its own to live in.
//
// forceInline additionally un-stores obj if it was already persisted
// under its own OID in this transaction, so a caller that changes its
// mind about a previously by-reference field can fold the value back
// inline without leaving an orphaned object behind.
func (t *Transaction) StoreIfNotInlined(obj any, autoRegister, forceInline bool) (oid.OID, error) {
	if err := t.checkWritable(); err != nil {
		return 0, err
	}
	rt := reflect.TypeOf(obj)
	if rt == nil || rt.Kind() != reflect.Ptr {
		return 0, ErrInvalidStorage
	}

	if _, ok := t.owner.Registry().Lookup(rt); !ok {
		// Registering a brand-new table needs a saver/loader pair this
		// call site doesn't have; even with autoRegister requested there
		// is nothing to build a TableInfo from, so this falls back to
		// inline exactly as the auto-register-disabled case does.
		return InlineSentinel, nil
	}

	if forceInline {
		if md, had := t.identity.GetMetadata(obj); had && md.id != 0 {
			if err := t.Delete(obj); err != nil {
				return 0, err
			}
		}
		return InlineSentinel, nil
	}

	return t.Store(obj)
}

// DeleteAll deletes every live object of type T. It collects the
// objects from one full enumeration first and only then calls Delete on
// each, so no deletion happens while the cursor walk is in progress.
func DeleteAll[T any](t *Transaction) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	var objs []any
	for obj, err := range All[T](t) {
		if err != nil {
			return err
		}
		objs = append(objs, obj)
	}
	for _, obj := range objs {
		if err := t.Delete(obj); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllData wipes every key space this transaction manages:
// objects, schema bookkeeping, and the relation/dictionary stores the
// transaction's own collaborators own. It is an all-or-nothing reset,
// not a per-table operation, matching the reference implementation's
// "start over" semantics used by test harnesses and destructive admin
// tooling.
func (t *Transaction) DeleteAllData() error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	for _, prefix := range [][]byte{
		PrefixAllObjects,
		PrefixTableNames,
		PrefixTableVersions,
		PrefixTableSingletons,
		PrefixAllDictionaries,
		PrefixAllRelationsPK,
		PrefixAllRelationsSK,
	} {
		if err := t.rw.DeletePrefix(prefix); err != nil {
			return fmt.Errorf("objtx: erasing %s: %w", prefix, err)
		}
	}
	t.identity = newIdentityMap(t.dirty.Contains)
	t.dirty = dirtySet{}
	t.deleted = nil
	t.relChain = nil
	t.relChainLen = 0
	t.relIndex = nil
	for _, ti := range t.owner.Registry().All() {
		ti.LastPersistedVersion = -1
		ti.NeedStoreSingletonOid = false
		ti.SingletonOid = 0
	}
	t.guard.bump()
	return nil
}

// GetCommitUlong returns the free-form commit marker most recently
// persisted by SetCommitUlong, or 0 if none has ever been set.
func (t *Transaction) GetCommitUlong() (uint64, error) {
	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	data, found, err := t.kvtx.Get(PrefixMeta, metaKeyCommitUlong)
	if err != nil {
		return 0, fmt.Errorf("objtx: reading commit ulong: %w", err)
	}
	if !found {
		return 0, nil
	}
	v, _, err := oid.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("objtx: corrupt commit ulong: %w", err)
	}
	return uint64(v), nil
}

// SetCommitUlong stamps a free-form uint64 marker that becomes readable
// by GetCommitUlong once this transaction commits. Callers use this to
// carry an external sequence number (e.g. a replication cursor) in step
// with the object store's own commit boundary without needing a table
// of their own.
func (t *Transaction) SetCommitUlong(v uint64) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.rw.Put(PrefixMeta, metaKeyCommitUlong, oid.AppendEncode(nil, oid.OID(v)))
}
