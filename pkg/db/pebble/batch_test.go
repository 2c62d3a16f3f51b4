package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCommitIsAtomic(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	require.NoError(t, store.Put([]byte("entry"), []byte("evidence")))

	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	require.NoError(t, batch.Put([]byte("result"), []byte("ok")))
	require.NoError(t, batch.Delete([]byte("entry")))

	// Nothing is visible before commit
	_, err = store.Get([]byte("result"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, batch.Commit())

	v, err := store.Get([]byte("result"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)
	_, err = store.Get([]byte("entry"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, batch.Put([]byte("late"), nil), ErrBatchDone)
	assert.ErrorIs(t, batch.Commit(), ErrBatchDone)
	assert.NoError(t, batch.Close())
}

func TestBatchCloseDiscards(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("discarded"), []byte("x")))
	require.NoError(t, batch.Close())

	_, err = store.Get([]byte("discarded"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, batch.Delete([]byte("discarded")), ErrBatchDone)
}
