package objtx

import (
	"fmt"
	"reflect"
	"time"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/schema"
)

// Owner is the database that opens transactions against a shared type
// registry and a shared OID/dictionary-id allocator. pkg/objdb.Database
// implements this; objtx never imports objdb, avoiding a cycle.
type Owner interface {
	// Registry returns the shared table registry.
	Registry() *schema.Registry
	// NextOID allocates the next object id. Called exactly once per
	// object, the first time it is stored.
	NextOID() oid.OID
	// LastAllocatedOID returns the highest OID handed out so far,
	// captured by the enumeration engine at the start of a scan to
	// bound its dirty-set tail merge.
	LastAllocatedOID() oid.OID
	// LastDictionaryID returns the highest dictionary id committed so
	// far. A transaction seeds its local counter from this on the first
	// AllocateDictionaryID call.
	LastDictionaryID() uint64
	// CommitLastDictionaryID folds a transaction's local dictionary
	// counter back into the owner at commit.
	CommitLastDictionaryID(id uint64)
	// AllowAutoRegistration reports whether an unregistered Go type may
	// be registered on first use rather than rejected.
	AllowAutoRegistration() bool
	// RelationFactory returns the factory registered for a relation
	// interface type, if any.
	RelationFactory(ifaceType reflect.Type) (RelationFactory, bool)
	// RegisterRelationFactory binds ifaceType to factory. A later
	// registration for the same type replaces the earlier one.
	RegisterRelationFactory(ifaceType reflect.Type, factory RelationFactory)
	// RelationTypes lists every relation interface type with a
	// registered factory.
	RelationTypes() []reflect.Type
}

// Transaction is the per-transaction object manager: it
// resolves OIDs to live Go objects through a bounded identity map,
// tracks dirty objects, drains them at commit, and lazily persists
// schema metadata. It wraps exactly one pkg/kv transaction handle.
type Transaction struct {
	owner Owner
	kvtx  kv.Tx
	rw    kv.RwTx // non-nil iff this is a writable transaction
	ro    bool

	identity *identityMap
	dirty    dirtySet
	deleted  map[oid.OID]struct{}
	guard    cursorGuard

	persistor *schemaPersistor

	// Relation chain: relations touched by this transaction, newest
	// first, promoted to relIndex once a lookup walks far enough.
	relChain    *relationLink
	relChainLen int
	relIndex    map[reflect.Type]any

	// Local dictionary counter, seeded lazily from the owner and
	// flushed back at commit.
	lastDictID uint64
	dictInit   bool

	tempCloseLog bool

	onClose func() // released exactly once, by Commit or Dispose
	closed  bool
}

// NewReadOnly wraps a read-only kv.Tx.
func NewReadOnly(owner Owner, tx kv.Tx) *Transaction {
	t := &Transaction{owner: owner, kvtx: tx, ro: true}
	t.identity = newIdentityMap(t.dirty.Contains)
	t.persistor = newSchemaPersistor(owner.Registry())
	return t
}

// NewWriter wraps a writable kv.RwTx. onClose, if non-nil, is invoked
// exactly once when the transaction is Committed or Disposed, so an
// owning database can release a single-writer lock it held open across
// the transaction's lifetime.
func NewWriter(owner Owner, tx kv.RwTx, onClose ...func()) *Transaction {
	t := &Transaction{owner: owner, kvtx: tx, rw: tx}
	t.identity = newIdentityMap(t.dirty.Contains)
	t.persistor = newSchemaPersistor(owner.Registry())
	if len(onClose) > 0 {
		t.onClose = onClose[0]
	}
	return t
}

// IsReadOnly reports whether mutating methods are permitted.
func (t *Transaction) IsReadOnly() bool { return t.ro }

func (t *Transaction) checkOpen() error {
	if t.closed {
		return ErrClosed
	}
	return nil
}

func (t *Transaction) checkWritable() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.ro {
		return ErrReadOnly
	}
	return nil
}

// tableInfoFor resolves the TableInfo for obj's type. Unlike relation
// types, object tables have no reflection-derived default
// codec: a caller must register a TableInfo with an explicit Saver
// before the first Store.
func (t *Transaction) tableInfoFor(regType reflect.Type) (*schema.TableInfo, error) {
	ti, ok := t.owner.Registry().Lookup(regType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (register a TableInfo with a saver before first use)", ErrUnknownType, regType)
	}
	return ti, nil
}

// AllocateDictionaryID returns the next local dictionary id. The counter
// is seeded from the owner on first use and handed back at commit, so
// ids allocated by a transaction that is disposed without committing are
// simply reused by the next writer.
func (t *Transaction) AllocateDictionaryID() uint64 {
	if !t.dictInit {
		t.lastDictID = t.owner.LastDictionaryID()
		t.dictInit = true
	}
	t.lastDictID++
	return t.lastDictID
}

// Store persists obj, assigning it a fresh OID on first use and
// re-marking it dirty on every subsequent call in the same or a later
// transaction. obj must be a pointer to a registered type. An
// Indirect passed here is unwrapped: one already bound to an OID is
// kept by reference, one holding only a live target stores the target.
func (t *Transaction) Store(obj any) (oid.OID, error) {
	if err := t.checkWritable(); err != nil {
		return 0, err
	}
	if ind, ok := obj.(indirection); ok {
		if id := ind.indirectOID(); id != 0 {
			return id, nil
		}
		target, has := ind.indirectTarget()
		if !has {
			return 0, ErrInvalidStorage
		}
		id, err := t.Store(target)
		if err != nil {
			return 0, err
		}
		ind.bindOID(id)
		return id, nil
	}
	rt := reflect.TypeOf(obj)
	if rt == nil || rt.Kind() != reflect.Ptr {
		return 0, ErrInvalidStorage
	}
	if _, err := t.tableInfoFor(rt); err != nil {
		return 0, err
	}

	if md, ok := t.identity.GetMetadata(obj); ok {
		if md.state == StateDeleted {
			return md.id, nil
		}
		if md.id == 0 {
			md.id = t.owner.NextOID()
			t.identity.Insert(md.id, obj, md)
		}
		md.state = StateDirty
		t.dirty.Add(md.id, obj)
		return md.id, nil
	}

	id := t.owner.NextOID()
	md := &metadata{id: id, state: StateDirty}
	t.identity.Insert(id, obj, md)
	t.dirty.Add(id, obj)
	return id, nil
}

// Get materializes the object with id, resolving through the identity
// map before falling back to a key-value read.
func (t *Transaction) Get(id oid.OID) (any, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	if obj, ok := t.identity.GetByOID(id); ok {
		return obj, nil
	}
	if _, gone := t.deleted[id]; gone {
		return nil, nil
	}

	value, found, err := t.kvtx.Get(PrefixAllObjects, oid.AppendEncode(nil, id))
	if err != nil {
		return nil, fmt.Errorf("objtx: reading oid %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return t.decodeAndTrack(id, value)
}

// Delete marks obj as removed, erasing its persisted record within this
// transaction. If obj was never stored, this installs a stub so a later
// accidental Store of the same reference is a no-op instead of silently
// resurrecting it. An Indirect bound to an OID delegates to DeleteOid;
// one holding only a live target deletes the target.
func (t *Transaction) Delete(obj any) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if ind, ok := obj.(indirection); ok {
		if id := ind.indirectOID(); id != 0 {
			return t.DeleteOid(id)
		}
		target, has := ind.indirectTarget()
		if !has || target == nil {
			return nil
		}
		return t.Delete(target)
	}
	md, ok := t.identity.GetMetadata(obj)
	if !ok {
		stub := &metadata{id: 0, state: StateDeleted}
		t.identity.InsertStub(obj, stub)
		return nil
	}
	if md.state == StateDeleted {
		return nil
	}
	if md.id != 0 {
		if err := t.eraseObject(md.id); err != nil {
			return err
		}
		t.dropSingletonContentByType(reflect.TypeOf(obj), md.id)
		t.dirty.Remove(md.id)
		t.markDeleted(md.id)
		t.identity.Remove(md.id, obj)
	}
	md.state = StateDeleted
	t.identity.InsertStub(obj, md)
	return nil
}

// DeleteOid removes the object with the given id, whether or not it was
// ever materialized in this transaction.
func (t *Transaction) DeleteOid(id oid.OID) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	if obj, ok := t.identity.GetByOID(id); ok {
		return t.Delete(obj)
	}
	if _, gone := t.deleted[id]; gone {
		return nil
	}
	if err := t.eraseObject(id); err != nil {
		return err
	}
	t.dirty.Remove(id)
	t.markDeleted(id)
	return nil
}

func (t *Transaction) markDeleted(id oid.OID) {
	if t.deleted == nil {
		t.deleted = make(map[oid.OID]struct{})
	}
	t.deleted[id] = struct{}{}
}

// eraseObject removes id's persisted record, first freeing any
// out-of-line dictionary content the record owns and dropping stale
// cached singleton bytes if the record is its table's singleton.
func (t *Transaction) eraseObject(id oid.OID) error {
	key := oid.AppendEncode(nil, id)
	data, found, err := t.kvtx.Get(PrefixAllObjects, key)
	if err != nil {
		return fmt.Errorf("objtx: reading oid %s for delete: %w", id, err)
	}
	if !found {
		return nil
	}
	if err := t.freeDictionaryContent(id, data); err != nil {
		return err
	}
	if tableID, ok := peekTopLevelTableID(data); ok {
		if ti, known := t.owner.Registry().LookupID(tableID); known && ti.SingletonOid == id {
			t.dropSingletonContent(ti)
		}
	}
	if err := t.rw.Delete(PrefixAllObjects, key); err != nil {
		return fmt.Errorf("objtx: deleting oid %s: %w", id, err)
	}
	t.guard.bump()
	return nil
}

// dropSingletonContent evicts cached singleton bytes for this snapshot
// and the one the commit will create, so no later transaction observes
// content this one replaced or deleted.
func (t *Transaction) dropSingletonContent(ti *schema.TableInfo) {
	n := t.TxNumber()
	ti.SingletonCache.Remove(n)
	ti.SingletonCache.Remove(n + 1)
}

func (t *Transaction) dropSingletonContentByType(rt reflect.Type, id oid.OID) {
	if ti, ok := t.owner.Registry().Lookup(rt); ok && ti.SingletonOid == id {
		t.dropSingletonContent(ti)
	}
}

// encodeTopLevel frames obj exactly like a nested inline value (the
// formats are identical), returning the bytes to store under its OID
// key.
func (t *Transaction) encodeTopLevel(obj any) ([]byte, error) {
	wc := newWriterCtx(t)
	if err := wc.WriteInline(obj); err != nil {
		return nil, err
	}
	return wc.Bytes(), nil
}

// NextCommitTemporaryCloseTransactionLog asks the underlying engine to
// close and reopen its transaction log when this transaction commits,
// bounding the current log segment's size. It is a hint: engines
// without a log file ignore it.
func (t *Transaction) NextCommitTemporaryCloseTransactionLog() {
	t.tempCloseLog = true
}

// Commit drains the dirty set to a fixpoint (a saver may itself call
// Store), flushes the local dictionary counter to the owner, lazily
// persists any lagging schema metadata, and commits the underlying
// key-value transaction. Per-table persisted-version bookkeeping is
// only updated in memory once the key-value commit has succeeded.
func (t *Transaction) Commit() (err error) {
	if err := t.checkWritable(); err != nil {
		return err
	}

	start := time.Now()
	rounds := 0
	stored := 0
	committed := false

	// Commit is the one method that guarantees the underlying
	// key-value transaction and any writer lock are released no
	// matter how it returns: on any failure below we roll back
	// instead of leaving a half-applied transaction open.
	defer func() {
		t.closed = true
		if err != nil {
			if !committed {
				_ = t.rw.Rollback()
			}
			metrics.CommitsTotal.WithLabelValues("error").Inc()
		} else {
			metrics.CommitsTotal.WithLabelValues("ok").Inc()
		}
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
		metrics.CommitDrainRounds.Observe(float64(rounds))
		if t.onClose != nil {
			t.onClose()
		}
	}()

	for {
		round := t.dirty.drainOnce()
		if len(round) == 0 {
			break
		}
		rounds++
		if rounds > commitDrainLimit {
			return fmt.Errorf("objtx: commit drain did not converge after %d rounds", commitDrainLimit)
		}
		for _, entry := range round {
			if err := t.storeObject(entry.OID, entry.Obj); err != nil {
				return err
			}
			stored++
		}
	}
	metrics.ObjectsStoredTotal.Add(float64(stored))
	metrics.ObjectsDeletedTotal.Add(float64(len(t.deleted)))

	if t.dictInit {
		t.owner.CommitLastDictionaryID(t.lastDictID)
	}

	applySchema, perr := t.persistor.flush(t.rw)
	if perr != nil {
		return fmt.Errorf("objtx: persisting schema metadata: %w", perr)
	}

	if cerr := t.rw.Commit(); cerr != nil {
		return fmt.Errorf("objtx: commit: %w", cerr)
	}
	committed = true
	applySchema()

	if t.tempCloseLog {
		if lc, ok := t.rw.(kv.TransactionLogCloser); ok {
			if lerr := lc.CloseTransactionLog(); lerr != nil {
				return fmt.Errorf("objtx: closing transaction log: %w", lerr)
			}
		}
	}
	return nil
}

// commitDrainLimit bounds the fixpoint loop so a saver that stores a
// fresh object on every round surfaces as an error instead of spinning.
const commitDrainLimit = 1_000_000

// storeObject writes one drained dirty entry under its OID key,
// invalidating any cached singleton content the write supersedes.
func (t *Transaction) storeObject(id oid.OID, obj any) error {
	md, ok := t.identity.GetMetadata(obj)
	if !ok {
		return fmt.Errorf("%w: oid %s reached commit without identity-map state", ErrMissingMetadata, id)
	}
	if md.state == StateDeleted {
		return nil
	}
	data, err := t.encodeTopLevel(obj)
	if err != nil {
		return fmt.Errorf("objtx: encoding oid %s: %w", id, err)
	}
	t.dropSingletonContentByType(reflect.TypeOf(obj), id)
	if err := t.rw.Put(PrefixAllObjects, oid.AppendEncode(nil, id), data); err != nil {
		return fmt.Errorf("objtx: writing oid %s: %w", id, err)
	}
	t.guard.bump()
	return nil
}

// Dispose releases the transaction without persisting any change. It is
// always safe to call, including after a successful Commit.
func (t *Transaction) Dispose() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.onClose != nil {
		defer t.onClose()
	}
	if t.rw != nil {
		return t.rw.Rollback()
	}
	if rb, ok := t.kvtx.(interface{ Rollback() error }); ok {
		return rb.Rollback()
	}
	return nil
}

// TxNumber returns the snapshot number of the underlying key-value
// transaction, used to key the singleton content cache.
func (t *Transaction) TxNumber() uint64 {
	return t.kvtx.TxNumber()
}

// IdentityMapStats reports the identity map's current tier ("small" or
// "large") and live entry count, for metrics collection.
func (t *Transaction) IdentityMapStats() (mode string, entries int) {
	return t.identity.Mode(), t.identity.Len()
}
