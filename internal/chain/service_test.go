package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/testutils"
	"github.com/eigerco/attestd/pkg/db/pebble"
)

func TestBlockServiceGenesisAndImport(t *testing.T) {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer kv.Close() //nolint:errcheck

	bs, err := NewBlockService(kv)
	require.NoError(t, err)
	assert.Equal(t, Genesis(), bs.Head())

	next := bs.NextHeader([]crypto.Hash{testutils.RandomHash(t)})
	assert.Equal(t, block.Height(1), next.Height)
	require.NoError(t, bs.Import(next))
	assert.Equal(t, next, bs.Head())

	assert.ErrorIs(t, bs.Import(next), ErrNotChild)

	// reopening keeps the head
	reopened, err := NewBlockService(kv)
	require.NoError(t, err)
	assert.Equal(t, next, reopened.Head())

	stored, err := reopened.Store.GetHeader(next.ParentHash)
	require.NoError(t, err)
	assert.Equal(t, Genesis(), stored)
}
