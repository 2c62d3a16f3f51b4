package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/pkg/db"
)

func TestIterator(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "full_range_iteration", fn: testFullRangeIteration},
		{name: "bounded_range_iteration", fn: testBoundedRangeIteration},
		{name: "prefix_iteration", fn: testPrefixIteration},
		{name: "iterator_validity", fn: testIteratorValidity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func putAll(t *testing.T, store db.KVStore, keys ...string) {
	for _, k := range keys {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}
}

func collectKeys(t *testing.T, store db.KVStore, start, end []byte) []string {
	iter, err := store.NewIterator(start, end)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	var keys []string
	for iter.Next() {
		v, err := iter.Value()
		require.NoError(t, err)
		assert.Equal(t, "value-"+string(iter.Key()), string(v))
		keys = append(keys, string(iter.Key()))
	}
	return keys
}

func testFullRangeIteration(t *testing.T, store db.KVStore) {
	putAll(t, store, "d", "b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c", "d"}, collectKeys(t, store, nil, nil))
}

func testBoundedRangeIteration(t *testing.T, store db.KVStore) {
	putAll(t, store, "a", "b", "c", "d", "e")
	assert.Equal(t, []string{"b", "c", "d"}, collectKeys(t, store, []byte("b"), []byte("e")))
}

func testPrefixIteration(t *testing.T, store db.KVStore) {
	putAll(t, store, "q1a", "q1b", "q2a", "r")
	prefix := []byte("q1")
	assert.Equal(t, []string{"q1a", "q1b"}, collectKeys(t, store, prefix, db.PrefixEnd(prefix)))
}

func testIteratorValidity(t *testing.T, store db.KVStore) {
	putAll(t, store, "key1", "key2")

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	// Not positioned until the first Next
	assert.False(t, iter.Valid())

	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())
	assert.True(t, iter.Next())
	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())
	// An exhausted iterator stays exhausted
	assert.False(t, iter.Next())

	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x03}, db.PrefixEnd([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, db.PrefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, db.PrefixEnd([]byte{0xff, 0xff}))
}
