package objdb

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/kv/boltkv"
	"github.com/cuemby/objstore/pkg/objtx"
	"github.com/cuemby/objstore/pkg/schema"
)

type widget struct {
	Name string
}

func widgetSaver(w schema.Writer, obj any) error {
	s := obj.(*widget)
	b := []byte(s.Name)
	_, err := w.Write(append([]byte{byte(len(b))}, b...))
	return err
}

func widgetLoader(r schema.Reader, obj any) error {
	s := obj.(*widget)
	var n [1]byte
	if _, err := r.Read(n[:]); err != nil {
		return err
	}
	buf := make([]byte, n[0])
	if _, err := r.Read(buf); err != nil {
		return err
	}
	s.Name = string(buf)
	return nil
}

func openTestDB(t *testing.T) (*Database, func()) {
	t.Helper()
	store, err := boltkv.Open(t.TempDir() + "/objdb_test.db")
	require.NoError(t, err)
	db := Open(store, 0, 0, Options{AllowAutoRegistration: false, FirstTableID: 0})
	ti := schema.NewTableInfo("widget", reflect.TypeOf((*widget)(nil)))
	ti.Saver = widgetSaver
	ti.SetLoader(1, widgetLoader)
	ti.ClientTypeVersion = 1
	_, err = db.RegisterTable(ti)
	require.NoError(t, err)
	return db, func() { _ = store.Close() }
}

func TestBeginUpdateSerializesWriters(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	tx, err := db.BeginUpdate()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tx2, err := db.BeginUpdate()
		require.NoError(t, err)
		require.NoError(t, tx2.Dispose())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second writer opened before first was released")
	default:
	}

	require.NoError(t, tx.Commit())
	<-done
}

func TestStoreGetCommitRoundTrip(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	tx, err := db.BeginUpdate()
	require.NoError(t, err)
	w := &widget{Name: "gizmo"}
	id, err := tx.Store(w)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	reader, err := db.BeginRead()
	require.NoError(t, err)
	got, err := reader.Get(id)
	require.NoError(t, err)
	require.Equal(t, "gizmo", got.(*widget).Name)
	require.NoError(t, reader.Dispose())
}

func TestTableForAutoRegistrationForbidden(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	type other struct{}
	_, err := db.TableFor(&other{}, "other")
	require.Error(t, err)
}

func TestInstanceIDStableAcrossCalls(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	first, err := db.InstanceID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := db.InstanceID()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRelationFactoryRegistry(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	typ := reflect.TypeOf((*interface{ ByName() })(nil)).Elem()
	_, ok := db.RelationFactory(typ)
	require.False(t, ok)

	db.RegisterRelationFactory(typ, func(tx *objtx.Transaction) (any, error) {
		return struct{}{}, nil
	})
	_, ok = db.RelationFactory(typ)
	require.True(t, ok)
	require.Equal(t, []reflect.Type{typ}, db.RelationTypes())
}

func TestDictionaryCounterSurvivesCommitOnly(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	tx, err := db.BeginUpdate()
	require.NoError(t, err)
	first := tx.AllocateDictionaryID()
	require.Equal(t, uint64(1), first)
	require.NoError(t, tx.Commit())
	require.Equal(t, uint64(1), db.LastDictionaryID())

	tx2, err := db.BeginUpdate()
	require.NoError(t, err)
	require.Equal(t, uint64(2), tx2.AllocateDictionaryID())
	require.NoError(t, tx2.Dispose())
	require.Equal(t, uint64(1), db.LastDictionaryID(), "a disposed transaction's allocations roll back")
}

func TestNextOIDMonotonic(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	a := db.NextOID()
	b := db.NextOID()
	require.Less(t, uint64(a), uint64(b))
	require.Equal(t, b, db.LastAllocatedOID())
}
