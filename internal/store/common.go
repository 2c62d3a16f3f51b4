package store

import (
	"encoding/binary"
	"errors"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/pkg/db"
	"github.com/eigerco/attestd/pkg/db/pebble"
)

// Prefix constants for all store types
const (
	prefixQueue byte = iota + 1
	prefixRegistry
	prefixRegistryMember
	prefixResult
	prefixResultBounds
	prefixHeader
	prefixMeta
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixQueue:
		return "queue"
	case prefixRegistry:
		return "registry"
	case prefixRegistryMember:
		return "registryMember"
	case prefixResult:
		return "result"
	case prefixResultBounds:
		return "resultBounds"
	case prefixHeader:
		return "header"
	case prefixMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Deleter is satisfied by both db.KVStore and db.Batch.
type Deleter interface {
	Delete(key []byte) error
}

// makeKey creates a key from a prefix and any number of key parts
func makeKey(prefix byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, prefix)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Heights and sequence numbers are big-endian so that key order is numeric order.
func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func heightBytes(h block.Height) []byte {
	return encodeUint64(uint64(h))
}

func isNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// get returns nil, nil when the key is absent.
func get(kv db.KVStore, key []byte) ([]byte, error) {
	v, err := kv.Get(key)
	if isNotFound(err) {
		return nil, nil
	}
	return v, err
}
