package objtx

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// Distinct interface shapes to request relations by.
type relByName interface{ ByName() }
type relByAge interface{ ByAge() }
type relByCity interface{ ByCity() }
type relByRank interface{ ByRank() }
type relByDate interface{ ByDate() }

func relType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func newRelationTx(t *testing.T, allowAuto bool) (*fakeOwner, *Transaction) {
	t.Helper()
	owner := newFakeOwner()
	owner.allowAuto = allowAuto
	store := openStore(t)
	rw, err := store.Begin(true)
	require.NoError(t, err)
	tx := NewWriter(owner, rw)
	t.Cleanup(func() { _ = tx.Dispose() })
	return owner, tx
}

func TestGetRelationAutoRegistersAndCaches(t *testing.T) {
	_, tx := newRelationTx(t, true)

	typ := relType[relByName]()
	r1, err := tx.GetRelation(typ)
	require.NoError(t, err)
	handle, ok := r1.(*Relation)
	require.True(t, ok)
	require.Equal(t, typ, handle.InterfaceType())
	require.Same(t, tx, handle.Transaction())

	r2, err := tx.GetRelation(typ)
	require.NoError(t, err)
	require.Same(t, r1, r2, "repeated lookups must return the chained instance")
}

func TestGetRelationUsesRegisteredFactory(t *testing.T) {
	type customRel struct{}
	owner, tx := newRelationTx(t, false)

	typ := relType[relByAge]()
	built := 0
	owner.RegisterRelationFactory(typ, func(tx *Transaction) (any, error) {
		built++
		return &customRel{}, nil
	})

	r1, err := tx.GetRelation(typ)
	require.NoError(t, err)
	require.IsType(t, &customRel{}, r1)

	_, err = tx.GetRelation(typ)
	require.NoError(t, err)
	require.Equal(t, 1, built, "the factory runs once per transaction")
}

func TestGetRelationForbiddenWithoutAutoRegistration(t *testing.T) {
	_, tx := newRelationTx(t, false)

	_, err := tx.GetRelation(relType[relByName]())
	require.ErrorIs(t, err, ErrAutoRegistrationForbidden)
}

func TestInitRelationRejectsNonInterface(t *testing.T) {
	_, tx := newRelationTx(t, true)

	_, err := tx.InitRelation("widgets", reflect.TypeOf((*widget)(nil)))
	require.ErrorIs(t, err, ErrRelationShapeInvalid)
}

func TestRelationChainPromotesToIndex(t *testing.T) {
	_, tx := newRelationTx(t, true)

	types := []reflect.Type{
		relType[relByName](),
		relType[relByAge](),
		relType[relByCity](),
		relType[relByRank](),
		relType[relByDate](),
	}
	instances := make([]any, len(types))
	for i, typ := range types {
		r, err := tx.GetRelation(typ)
		require.NoError(t, err)
		instances[i] = r
	}
	require.Nil(t, tx.relIndex, "short lookups alone must not promote")

	// The first type registered now sits at the tail of the chain, so
	// finding it walks every link and crosses the promotion threshold.
	deep, err := tx.GetRelation(types[0])
	require.NoError(t, err)
	require.Same(t, instances[0], deep)
	require.NotNil(t, tx.relIndex)

	// Promotion is transparent: every instance resolves identically.
	for i, typ := range types {
		r, err := tx.GetRelation(typ)
		require.NoError(t, err)
		require.Same(t, instances[i], r)
	}
}
