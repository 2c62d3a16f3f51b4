package store

import (
	"errors"
	"fmt"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/db"
)

var (
	ErrHeaderNotFound = errors.New("header not found")

	headKey = makeKey(prefixMeta, []byte("head"))
)

// Chain keeps imported headers and the current head, whose height is the
// ledger's logical clock.
type Chain struct {
	db.KVStore
}

func NewChain(kv db.KVStore) *Chain {
	return &Chain{KVStore: kv}
}

// PutHead stores header and makes it the current head, atomically.
func (c *Chain) PutHead(header block.Header) error {
	batch := c.NewBatch()
	defer batch.Close() //nolint:errcheck

	hash := header.Hash()
	encoded := header.Encode()
	if err := batch.Put(makeKey(prefixHeader, hash[:]), encoded); err != nil {
		return fmt.Errorf("put header: %w", err)
	}
	if err := batch.Put(headKey, encoded); err != nil {
		return fmt.Errorf("put head: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (c *Chain) GetHeader(hash crypto.Hash) (block.Header, error) {
	v, err := c.Get(makeKey(prefixHeader, hash[:]))
	if err != nil {
		if isNotFound(err) {
			return block.Header{}, ErrHeaderNotFound
		}
		return block.Header{}, fmt.Errorf("get header: %w", err)
	}
	return block.DecodeHeader(v)
}

// Head returns the current head; ok is false before the first block.
func (c *Chain) Head() (header block.Header, ok bool, err error) {
	v, err := get(c.KVStore, headKey)
	if err != nil {
		return block.Header{}, false, fmt.Errorf("get head: %w", err)
	}
	if v == nil {
		return block.Header{}, false, nil
	}
	header, err = block.DecodeHeader(v)
	if err != nil {
		return block.Header{}, false, fmt.Errorf("decode head: %w", err)
	}
	return header, true, nil
}

// Height returns the height of the current head, 0 before the first block.
func (c *Chain) Height() (block.Height, error) {
	head, ok, err := c.Head()
	if err != nil || !ok {
		return 0, err
	}
	return head.Height, nil
}
