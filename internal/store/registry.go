package store

import (
	"encoding/binary"
	"fmt"

	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/db"
)

var registryLenKey = makeKey(prefixMeta, []byte("registryLen"))

// Registry is the append-only allow-list of verifier keys. Entries keep their
// insertion order (duplicates included) and a membership index makes lookups
// independent of the list length.
type Registry struct {
	db.KVStore
}

func NewRegistry(kv db.KVStore) *Registry {
	return &Registry{KVStore: kv}
}

// AppendKey adds key at the end of the list atomically with its membership marker.
func (r *Registry) AppendKey(key crypto.VerifierKey) error {
	n, err := r.Len()
	if err != nil {
		return err
	}

	batch := r.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := batch.Put(makeKey(prefixRegistry, encodeUint64(n)), key[:]); err != nil {
		return fmt.Errorf("put registry entry: %w", err)
	}
	if err := batch.Put(makeKey(prefixRegistryMember, key[:]), nil); err != nil {
		return fmt.Errorf("put registry member: %w", err)
	}
	if err := batch.Put(registryLenKey, encodeUint64(n+1)); err != nil {
		return fmt.Errorf("put registry length: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *Registry) Contains(key crypto.VerifierKey) (bool, error) {
	_, err := r.Get(makeKey(prefixRegistryMember, key[:]))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get registry member: %w", err)
	}
	return true, nil
}

func (r *Registry) Len() (uint64, error) {
	v, err := get(r.KVStore, registryLenKey)
	if err != nil {
		return 0, fmt.Errorf("get registry length: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

// Keys returns the registered keys in insertion order.
func (r *Registry) Keys() ([]crypto.VerifierKey, error) {
	iter, err := r.NewIterator([]byte{prefixRegistry}, []byte{prefixRegistry + 1})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var keys []crypto.VerifierKey
	for iter.Next() {
		v, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("get iterator value: %w", err)
		}
		var k crypto.VerifierKey
		if len(v) != len(k) {
			return nil, fmt.Errorf("malformed registry entry %x", iter.Key())
		}
		copy(k[:], v)
		keys = append(keys, k)
	}
	return keys, nil
}
