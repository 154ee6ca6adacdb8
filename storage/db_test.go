package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	ok, err := db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.True(t, ok)

	batch := db.NewBatch()
	batch.Put([]byte("a/3"), []byte("three"))
	batch.Put([]byte("a/2"), []byte("two"))
	batch.Put([]byte("b/1"), []byte("other"))
	batch.Delete([]byte("a/1"))
	require.Equal(t, 4, batch.Len())
	_, err = db.Get([]byte("a/2"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, batch.Write())

	var keys []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key)+"="+string(value))
		return true
	}))
	require.Equal(t, []string{"a/2=two", "a/3=three"}, keys)

	keys = nil
	require.NoError(t, db.Iterate(nil, func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return len(keys) < 2
	}))
	require.Len(t, keys, 2)

	require.NoError(t, db.Delete([]byte("a/2")))
	require.NoError(t, db.Delete([]byte("a/2")))
	ok, err = db.Has([]byte("a/2"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}
