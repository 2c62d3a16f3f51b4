package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/pkg/db"
	"github.com/eigerco/attestd/pkg/db/pebble"
)

func newKV(t *testing.T) db.KVStore {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestPrefixToString(t *testing.T) {
	require.Equal(t, "queue", PrefixToString(prefixQueue))
	require.Equal(t, "meta", PrefixToString(prefixMeta))
	require.Equal(t, "unknown", PrefixToString(0))
}
