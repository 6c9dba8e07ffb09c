package objtx

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOidAndGetStorageSize(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "measured"}
	require.Zero(t, tx.GetOid(w))

	id, err := tx.Store(w)
	require.NoError(t, err)
	require.Equal(t, id, tx.GetOid(w))
	require.NoError(t, tx.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	keyLen, valueLen, found, err := readTx.GetStorageSize(id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, keyLen)
	require.Greater(t, valueLen, 0)

	_, _, found, err = readTx.GetStorageSize(id + 1000)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteAllRemovesEveryInstance(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)
	for _, name := range []string{"a", "b", "c"} {
		_, err := tx.Store(&widget{Name: name})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	require.NoError(t, DeleteAll[*widget](tx2))
	require.NoError(t, tx2.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	var names []string
	for w, err := range All[*widget](readTx) {
		require.NoError(t, err)
		names = append(names, w.Name)
	}
	require.Empty(t, names)
}

func TestDeleteAllDataWipesEverything(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)
	_, err = tx.Store(&widget{Name: "doomed"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	rw2, err := store.Begin(true)
	require.NoError(t, err)
	tx2 := NewWriter(owner, rw2)
	require.NoError(t, tx2.DeleteAllData())
	require.NoError(t, tx2.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	var count int
	for range All[*widget](readTx) {
		count++
	}
	require.Zero(t, count)
}

func TestStoreIfNotInlinedUnregisteredFallsBackToSentinel(t *testing.T) {
	owner := newFakeOwner()
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	type scratch struct{ V int }
	v, err := tx.StoreIfNotInlined(&scratch{V: 1}, false, false)
	require.NoError(t, err)
	require.Equal(t, InlineSentinel, v)
	require.NoError(t, tx.Dispose())
}

func TestStoreIfNotInlinedForceInlineErasesPriorCopy(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "was-by-reference"}
	id, err := tx.StoreIfNotInlined(w, false, false)
	require.NoError(t, err)
	require.NotEqual(t, InlineSentinel, id)
	require.NotZero(t, id)

	v, err := tx.StoreIfNotInlined(w, false, true)
	require.NoError(t, err)
	require.Equal(t, InlineSentinel, v)
	require.NoError(t, tx.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()
	got, err := readTx.Get(id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreAndFlushWritesBeforeCommit(t *testing.T) {
	owner := newFakeOwner()
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	w := &widget{Name: "flushed"}
	id, err := tx.StoreAndFlush(w)
	require.NoError(t, err)
	require.True(t, tx.dirty.Empty(), "StoreAndFlush must not leave the object pending the commit drain")

	_, _, found, err := tx.GetStorageSize(id)
	require.NoError(t, err)
	require.True(t, found, "StoreAndFlush must make the encoded bytes readable before Commit")

	require.NoError(t, tx.Commit())
}

func TestCommitUlongRoundTrip(t *testing.T) {
	owner := newFakeOwner()
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	v, err := tx.GetCommitUlong()
	require.NoError(t, err)
	require.Zero(t, v)

	require.NoError(t, tx.SetCommitUlong(42))
	require.NoError(t, tx.Commit())

	rtx, err := store.Begin(false)
	require.NoError(t, err)
	readTx := NewReadOnly(owner, rtx)
	defer readTx.Dispose()

	v, err = readTx.GetCommitUlong()
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestEnumerateSingletonAndRelationTypes(t *testing.T) {
	owner := newFakeOwner()
	owner.allowAuto = true
	registerWidget(t, owner.reg)
	store := openStore(t)

	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)

	_, err = Singleton[*widget](tx)
	require.NoError(t, err)

	tagType := reflect.TypeOf((*interface{ Tags() })(nil)).Elem()
	_, err = tx.GetRelation(tagType)
	require.NoError(t, err)

	singletonTypes := tx.EnumerateSingletonTypes()
	require.Contains(t, singletonTypes, reflect.TypeOf((*widget)(nil)))

	relationTypes := tx.EnumerateRelationTypes()
	require.Contains(t, relationTypes, tagType)

	require.NoError(t, tx.Dispose())
}
