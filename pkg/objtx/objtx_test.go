package objtx

import (
	"encoding/binary"
	"io"
	"reflect"
	"testing"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/kv/boltkv"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/schema"
	"github.com/stretchr/testify/require"
)

// fakeOwner is a minimal Owner for exercising Transaction without the
// rest of the owning database.
type fakeOwner struct {
	reg       *schema.Registry
	nextOID   uint64
	lastDict  uint64
	relFacts  map[reflect.Type]RelationFactory
	allowAuto bool
}

func newFakeOwner() *fakeOwner {
	return &fakeOwner{reg: schema.NewRegistry(0)}
}

func (o *fakeOwner) Registry() *schema.Registry    { return o.reg }
func (o *fakeOwner) NextOID() oid.OID              { o.nextOID++; return oid.OID(o.nextOID) }
func (o *fakeOwner) LastAllocatedOID() oid.OID     { return oid.OID(o.nextOID) }
func (o *fakeOwner) LastDictionaryID() uint64      { return o.lastDict }
func (o *fakeOwner) CommitLastDictionaryID(id uint64) {
	if id > o.lastDict {
		o.lastDict = id
	}
}
func (o *fakeOwner) AllowAutoRegistration() bool { return o.allowAuto }

func (o *fakeOwner) RelationFactory(t reflect.Type) (RelationFactory, bool) {
	f, ok := o.relFacts[t]
	return f, ok
}

func (o *fakeOwner) RegisterRelationFactory(t reflect.Type, f RelationFactory) {
	if o.relFacts == nil {
		o.relFacts = make(map[reflect.Type]RelationFactory)
	}
	o.relFacts[t] = f
}

func (o *fakeOwner) RelationTypes() []reflect.Type {
	var out []reflect.Type
	for t := range o.relFacts {
		out = append(out, t)
	}
	return out
}

type widget struct {
	Name string
	Next *widget // optional, nil unless set; exercises WriteInline recursion
}

func widgetSaver(w schema.Writer, obj any) error {
	wd := obj.(*widget)
	if err := writeString(w, wd.Name); err != nil {
		return err
	}
	if wd.Next == nil {
		return w.WriteInline(nil)
	}
	return w.WriteInline(wd.Next)
}

func widgetLoader(r schema.Reader, obj any) error {
	wd := obj.(*widget)
	name, err := readString(r)
	if err != nil {
		return err
	}
	wd.Name = name
	next, err := r.ReadInline()
	if err != nil {
		return err
	}
	if next != nil {
		wd.Next = next.(*widget)
	}
	return nil
}

func writeString(w schema.Writer, s string) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(s)))
	if _, err := w.Write(tmp[:n]); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r schema.Reader) (string, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		return "", io.ErrUnexpectedEOF
	}
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func registerWidget(t *testing.T, reg *schema.Registry) *schema.TableInfo {
	t.Helper()
	ti := schema.NewTableInfo("widget", reflect.TypeOf((*widget)(nil)))
	ti.ClientTypeVersion = 1
	ti.Saver = widgetSaver
	ti.SetLoader(1, widgetLoader)
	ti.Creator = func() any { return &widget{} }
	registered, err := reg.Register(ti)
	require.NoError(t, err)
	return registered
}

func openStore(t *testing.T) *boltkv.Store {
	t.Helper()
	s, err := boltkv.Open(t.TempDir() + "/objtx.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetRoundTrip(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "gizmo"}
	id, err := tx.Store(w)
	require.NoError(t, err)
	require.NotZero(t, id)

	// same transaction, same reference, no round trip needed.
	again, err := tx.Get(id)
	require.NoError(t, err)
	require.Same(t, w, again)

	require.NoError(t, tx.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	got, err := readTx.Get(id)
	require.NoError(t, err)
	require.NotSame(t, w, got)
	require.Equal(t, "gizmo", got.(*widget).Name)
}

func TestCommitDrainsRecursiveStores(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	root := &widget{Name: "root"}
	rootID, err := tx.Store(root)
	require.NoError(t, err)

	// simulate a saver that recursively stores another object by
	// storing it ourselves before commit, as Store is reentrant.
	child := &widget{Name: "child"}
	childID, err := tx.Store(child)
	require.NoError(t, err)
	root.Next = child

	require.NoError(t, tx.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	gotRoot, err := readTx.Get(rootID)
	require.NoError(t, err)
	rw2 := gotRoot.(*widget)
	require.Equal(t, "root", rw2.Name)
	require.NotNil(t, rw2.Next)
	require.Equal(t, "child", rw2.Next.Name)

	gotChild, err := readTx.Get(childID)
	require.NoError(t, err)
	require.Equal(t, "child", gotChild.(*widget).Name)
}

func TestDeleteRemovesObjectAtCommit(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "ephemeral"}
	id, err := tx.Store(w)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	obj, err := tx2.Get(id)
	require.NoError(t, err)
	require.NoError(t, tx2.Delete(obj))
	require.NoError(t, tx2.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	got, err := readTx.Get(id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteBeforeCommitDropsFromDirtySet(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "never persisted"}
	_, err = tx.Store(w)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(w))
	require.True(t, tx.dirty.Empty())
	require.NoError(t, tx.Commit())
}

func TestReadOnlyTransactionRejectsMutation(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	tx := NewReadOnly(owner, rtx)
	defer tx.Dispose()

	_, err = tx.Store(&widget{Name: "nope"})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestIdentityMapPromotesAtThreshold(t *testing.T) {
	im := newIdentityMap(func(oid.OID) bool { return false })
	require.Equal(t, "small", im.Mode())

	for i := 1; i <= smallModeLimit; i++ {
		im.Insert(oid.OID(i), i, &metadata{id: oid.OID(i)})
	}
	require.Equal(t, "small", im.Mode())

	im.Insert(oid.OID(smallModeLimit+1), smallModeLimit+1, &metadata{id: oid.OID(smallModeLimit + 1)})
	require.Equal(t, "large", im.Mode())

	obj, ok := im.GetByOID(1)
	require.True(t, ok)
	require.Equal(t, 1, obj)
}

func TestIdentityMapEvictionSparesPinned(t *testing.T) {
	pinned := map[oid.OID]bool{1: true}
	im := newIdentityMap(func(o oid.OID) bool { return pinned[o] })

	for i := 1; i <= smallModeLimit+1; i++ {
		im.Insert(oid.OID(i), i, &metadata{id: oid.OID(i)})
	}
	require.Equal(t, "large", im.Mode())

	for i := smallModeLimit + 2; i <= largeModeCapacity+10; i++ {
		im.Insert(oid.OID(i), i, &metadata{id: oid.OID(i)})
	}

	_, ok := im.GetByOID(1)
	require.True(t, ok, "pinned entry must survive eviction")
}

func TestEnumerateMergesPersistedAndDirtyTail(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	_, err = tx.Store(&widget{Name: "one"})
	require.NoError(t, err)
	_, err = tx.Store(&widget{Name: "two"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	_, err = tx2.Store(&widget{Name: "three-uncommitted"})
	require.NoError(t, err)

	var names []string
	for w, err := range All[*widget](tx2) {
		require.NoError(t, err)
		names = append(names, w.Name)
	}
	require.ElementsMatch(t, []string{"one", "two", "three-uncommitted"}, names)
	require.NoError(t, tx2.Dispose())
}

func TestSingletonCreatesDefaultOnce(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	s1, err := Singleton[*widget](tx)
	require.NoError(t, err)
	s1.Name = "config"

	s2, err := Singleton[*widget](tx)
	require.NoError(t, err)
	require.Same(t, s1, s2)
	require.NoError(t, tx.Commit())
}

func TestDeleteByOidWithoutMaterializing(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)
	id, err := tx.Store(&widget{Name: "unseen"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	require.NoError(t, tx2.DeleteOid(id))

	got, err := tx2.Get(id)
	require.NoError(t, err)
	require.Nil(t, got, "Get must not observe an object deleted in the same transaction")
	require.NoError(t, tx2.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()
	got, err = readTx.Get(id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteIndirectionDelegatesByOid(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)
	id, err := tx.Store(&widget{Name: "pointee"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	ref := ByRef[*widget](id)
	require.NoError(t, tx2.Delete(&ref))
	require.NoError(t, tx2.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()
	got, err := readTx.Get(id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreUnwrapsZeroOidIndirection(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	target := &widget{Name: "held by value"}
	ref := ByValue(target)
	id, err := tx.Store(&ref)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, id, tx.GetOid(target), "storing the wrapper must store the wrapped target")

	// a second store of the now-bound wrapper keeps the same OID.
	again, err := tx.Store(&ref)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.NoError(t, tx.Commit())
}

func TestIndirectResolve(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	target := &widget{Name: "target"}
	id, err := tx.Store(target)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)

	ref := ByRef[*widget](id)
	resolved, err := ref.Resolve(tx2)
	require.NoError(t, err)
	require.Equal(t, "target", resolved.Name)

	// second resolve is served from the cache, not the store.
	again, err := ref.Resolve(tx2)
	require.NoError(t, err)
	require.Same(t, resolved, again)
	require.NoError(t, tx2.Dispose())
}

func TestAllocateDictionaryIDFlushesAtCommit(t *testing.T) {
	owner := newFakeOwner()
	owner.lastDict = 5
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	require.Equal(t, uint64(6), tx.AllocateDictionaryID())
	require.Equal(t, uint64(7), tx.AllocateDictionaryID())
	require.Equal(t, uint64(5), owner.lastDict, "the local counter must not reach the owner before commit")

	require.NoError(t, tx.Commit())
	require.Equal(t, uint64(7), owner.lastDict)

	// a disposed transaction's allocations are reused by the next one.
	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	require.Equal(t, uint64(8), tx2.AllocateDictionaryID())
	require.NoError(t, tx2.Dispose())
	require.Equal(t, uint64(7), owner.lastDict)
}

// logClosingTx wraps a kv.RwTx with the optional transaction-log
// capability so the commit hook has something to observe.
type logClosingTx struct {
	kv.RwTx
	closed *bool
}

func (l *logClosingTx) CloseTransactionLog() error {
	*l.closed = true
	return nil
}

func TestNextCommitTemporaryCloseTransactionLog(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	closed := false
	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, &logClosingTx{RwTx: rw, closed: &closed})

	_, err = tx.Store(&widget{Name: "logged"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.False(t, closed, "without the hint the log stays open")

	closed = false
	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, &logClosingTx{RwTx: rw2, closed: &closed})
	tx2.NextCommitTemporaryCloseTransactionLog()
	require.NoError(t, tx2.Commit())
	require.True(t, closed)
}
