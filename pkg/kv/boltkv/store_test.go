package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objstore.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetCommit(t *testing.T) {
	s := openTemp(t)

	wtx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(Buckets[0], []byte("k1"), []byte("v1")))
	require.NoError(t, wtx.Commit())

	rtx, err := s.Begin(false)
	require.NoError(t, err)
	defer rtx.Rollback()

	v, found, err := rtx.Get(Buckets[0], []byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(v))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	s := openTemp(t)

	rtx, err := s.Begin(false)
	require.NoError(t, err)
	defer rtx.Rollback()

	err = rtx.Put(Buckets[0], []byte("k"), []byte("v"))
	require.ErrorIs(t, err, kv.ErrReadOnly)
}

func TestCursorWalksInKeyOrder(t *testing.T) {
	s := openTemp(t)

	wtx, err := s.Begin(true)
	require.NoError(t, err)
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, wtx.Put(Buckets[0], []byte(k), []byte(k)))
	}
	require.NoError(t, wtx.Commit())

	rtx, err := s.Begin(false)
	require.NoError(t, err)
	defer rtx.Rollback()

	c, err := rtx.Cursor(Buckets[0])
	require.NoError(t, err)

	var got []string
	for k, _, ok := c.First(); ok; k, _, ok = c.Next() {
		got = append(got, string(k))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDeletePrefixClearsBucket(t *testing.T) {
	s := openTemp(t)

	wtx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(Buckets[0], []byte("k"), []byte("v")))
	require.NoError(t, wtx.Commit())

	wtx2, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, wtx2.DeletePrefix(Buckets[0]))
	require.NoError(t, wtx2.Commit())

	rtx, err := s.Begin(false)
	require.NoError(t, err)
	defer rtx.Rollback()
	_, found, err := rtx.Get(Buckets[0], []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}
