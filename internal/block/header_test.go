package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/crypto"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{
		ParentHash:    crypto.HashData([]byte("parent")),
		Height:        105,
		ExtrinsicHash: ExtrinsicHash([]crypto.Hash{crypto.HashData([]byte("result"))}),
	}

	decoded, err := DecodeHeader(h.Encode())
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
	assert.Equal(t, h.Hash(), decoded.Hash())

	_, err = DecodeHeader(h.Encode()[:10])
	assert.Error(t, err)
}

func TestExtrinsicHashIsOrderSensitive(t *testing.T) {
	a, b := crypto.HashData([]byte("a")), crypto.HashData([]byte("b"))
	assert.NotEqual(t, ExtrinsicHash([]crypto.Hash{a, b}), ExtrinsicHash([]crypto.Hash{b, a}))
	assert.NotEqual(t, ExtrinsicHash(nil), ExtrinsicHash([]crypto.Hash{a}))
}

func TestHeightSaturatingSub(t *testing.T) {
	assert.Equal(t, Height(3), Height(5).SaturatingSub(2))
	assert.Equal(t, Height(0), Height(1).SaturatingSub(2))
}
