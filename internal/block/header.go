package block

import (
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/codec"
)

// Header of an imported block. Only what the node needs to chain blocks and
// identify the included candidate results is kept.
type Header struct {
	ParentHash    crypto.Hash
	Height        Height
	ExtrinsicHash crypto.Hash
}

func (h Header) Encode() []byte {
	return codec.NewEncoder().
		Fixed(h.ParentHash[:]).
		Uint64(uint64(h.Height)).
		Fixed(h.ExtrinsicHash[:]).
		Result()
}

func (h Header) Hash() crypto.Hash {
	return crypto.HashData(h.Encode())
}

func DecodeHeader(b []byte) (Header, error) {
	var h Header
	d := codec.NewDecoder(b)
	if err := d.Fixed(h.ParentHash[:]); err != nil {
		return h, err
	}
	height, err := d.Uint64()
	if err != nil {
		return h, err
	}
	h.Height = Height(height)
	if err := d.Fixed(h.ExtrinsicHash[:]); err != nil {
		return h, err
	}
	return h, d.Finish()
}

// ExtrinsicHash commits to the ordered list of included message hashes.
func ExtrinsicHash(hashes []crypto.Hash) crypto.Hash {
	e := codec.NewEncoder().Natural(uint64(len(hashes)))
	for _, h := range hashes {
		e.Fixed(h[:])
	}
	return crypto.HashData(e.Result())
}
