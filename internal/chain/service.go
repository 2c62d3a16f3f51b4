// Package chain tracks the node's view of the chain head.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/store"
	"github.com/eigerco/attestd/pkg/db"
)

var ErrNotChild = errors.New("header does not extend the current head")

// BlockService keeps the current head and stores every imported header.
type BlockService struct {
	mu    sync.RWMutex
	head  block.Header
	Store *store.Chain
}

// NewBlockService loads the head from kv, storing a genesis header at height
// 0 when kv is empty.
func NewBlockService(kv db.KVStore) (*BlockService, error) {
	bs := &BlockService{Store: store.NewChain(kv)}
	head, ok, err := bs.Store.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to load head: %w", err)
	}
	if !ok {
		head = Genesis()
		if err := bs.Store.PutHead(head); err != nil {
			return nil, fmt.Errorf("failed to store genesis header: %w", err)
		}
	}
	bs.head = head
	return bs, nil
}

func Genesis() block.Header {
	return block.Header{ParentHash: crypto.Hash{}, Height: 0, ExtrinsicHash: block.ExtrinsicHash(nil)}
}

func (bs *BlockService) Head() block.Header {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.head
}

// NextHeader builds the child of the current head committing to the given
// included message hashes.
func (bs *BlockService) NextHeader(included []crypto.Hash) block.Header {
	head := bs.Head()
	return block.Header{
		ParentHash:    head.Hash(),
		Height:        head.Height + 1,
		ExtrinsicHash: block.ExtrinsicHash(included),
	}
}

// Import makes header the new head. It must be a child of the current head.
func (bs *BlockService) Import(header block.Header) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if header.ParentHash != bs.head.Hash() || header.Height != bs.head.Height+1 {
		return fmt.Errorf("%w: height %d", ErrNotChild, header.Height)
	}
	if err := bs.Store.PutHead(header); err != nil {
		return err
	}
	bs.head = header
	return nil
}
