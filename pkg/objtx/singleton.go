package objtx

import (
	"fmt"
	"reflect"

	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/schema"
)

// Singleton returns the table-level root object of type T, materializing
// it on first access and creating a default instance if the table has
// never had one. In a read-only transaction a table with no singleton
// content yet yields an error instead of a default instance. T must be
// a pointer type registered with the owning database's registry.
func Singleton[T any](t *Transaction) (T, error) {
	var zero T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	ti, ok := t.owner.Registry().Lookup(rt)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownType, rt)
	}
	obj, err := t.singleton(ti)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: table %q holds %T, not %s", ErrSingletonTypeMismatch, ti.Name, obj, rt)
	}
	return typed, nil
}

func (t *Transaction) singleton(ti *schema.TableInfo) (any, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}

	if ti.SingletonOid == 0 {
		if err := t.recoverSingletonOid(ti); err != nil {
			return nil, err
		}
	}

	if ti.SingletonOid != 0 {
		if obj, ok := t.identity.GetByOID(ti.SingletonOid); ok {
			return obj, nil
		}

		txNum := t.TxNumber()
		if cached, ok := ti.SingletonCache.Get(txNum); ok {
			obj, err := t.decodeAndTrack(ti.SingletonOid, cached)
			if err != nil {
				return nil, err
			}
			return obj, nil
		}

		data, found, err := t.kvtx.Get(PrefixAllObjects, oid.AppendEncode(nil, ti.SingletonOid))
		if err != nil {
			return nil, fmt.Errorf("objtx: reading singleton %q: %w", ti.Name, err)
		}
		if found {
			ti.SingletonCache.Add(txNum, data)
			obj, err := t.decodeAndTrack(ti.SingletonOid, data)
			if err != nil {
				return nil, err
			}
			return obj, nil
		}
	}

	if t.ro {
		return nil, fmt.Errorf("objtx: singleton %q has no content yet and the transaction is read-only", ti.Name)
	}

	obj := ti.NewSingletonDefault()
	id, err := t.Store(obj)
	if err != nil {
		return nil, fmt.Errorf("objtx: creating default singleton %q: %w", ti.Name, err)
	}
	ti.SingletonOid = id
	ti.NeedStoreSingletonOid = true
	return obj, nil
}

// recoverSingletonOid fills in ti.SingletonOid from the persisted
// bookkeeping record the first time a table is touched in a fresh
// process, so a registry rebuilt from scratch on every restart still
// finds a singleton a previous run created. A table that has never
// stored a singleton leaves SingletonOid at zero, which the caller
// reads as "not created yet".
func (t *Transaction) recoverSingletonOid(ti *schema.TableInfo) error {
	data, found, err := t.kvtx.Get(PrefixTableSingletons, tableIDKey(ti.Id))
	if err != nil {
		return fmt.Errorf("objtx: recovering singleton oid for %q: %w", ti.Name, err)
	}
	if !found {
		return nil
	}
	id, _, err := oid.Decode(data)
	if err != nil {
		return fmt.Errorf("objtx: corrupt singleton oid for %q: %w", ti.Name, err)
	}
	ti.SingletonOid = id
	return nil
}

func (t *Transaction) decodeAndTrack(id oid.OID, data []byte) (any, error) {
	rc := newReaderCtx(t, data)
	obj, err := rc.ReadInline()
	if err != nil {
		return nil, fmt.Errorf("objtx: decoding oid %s: %w", id, err)
	}
	md := &metadata{id: id, state: StateRead}
	t.identity.Insert(id, obj, md)
	return obj, nil
}
