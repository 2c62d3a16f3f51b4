package store

import (
	"encoding/binary"
	"fmt"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/db"
)

// Results stores the accepted verification reports of each account as a
// capped, insertion-ordered log: once an account has more than the cap, its
// oldest reports are evicted.
type Results struct {
	db.KVStore
	max uint64
}

func NewResults(kv db.KVStore, maxPerAccount uint64) *Results {
	return &Results{KVStore: kv, max: maxPerAccount}
}

// bounds holds the sequence number of the oldest kept report and of the next one.
type bounds struct {
	first, next uint64
}

func (r *Results) bounds(account crypto.AccountId) (bounds, error) {
	v, err := get(r.KVStore, makeKey(prefixResultBounds, account[:]))
	if err != nil {
		return bounds{}, fmt.Errorf("get result bounds: %w", err)
	}
	if len(v) != 16 {
		return bounds{}, nil
	}
	return bounds{first: binary.BigEndian.Uint64(v[:8]), next: binary.BigEndian.Uint64(v[8:])}, nil
}

// AppendResult writes report into b. It reads the current bounds from the
// store, so only one append per account may be pending in a batch.
func (r *Results) AppendResult(b db.Batch, report attestation.Report) error {
	account := report.Submitter
	bs, err := r.bounds(account)
	if err != nil {
		return err
	}

	if err := b.Put(makeResultKey(account, bs.next), report.Encode()); err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	bs.next++
	for r.max > 0 && bs.next-bs.first > r.max {
		if err := b.Delete(makeResultKey(account, bs.first)); err != nil {
			return fmt.Errorf("evict result: %w", err)
		}
		bs.first++
	}

	v := binary.BigEndian.AppendUint64(encodeUint64(bs.first), bs.next)
	if err := b.Put(makeKey(prefixResultBounds, account[:]), v); err != nil {
		return fmt.Errorf("put result bounds: %w", err)
	}
	return nil
}

// ResultsFor returns the kept reports of account, oldest first.
func (r *Results) ResultsFor(account crypto.AccountId) ([]attestation.Report, error) {
	prefix := makeKey(prefixResult, account[:])
	iter, err := r.NewIterator(prefix, db.PrefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var reports []attestation.Report
	for iter.Next() {
		v, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("get iterator value: %w", err)
		}
		report, err := attestation.DecodeReport(v)
		if err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// makeResultKey: [prefix(1 byte)][account(32 bytes)][sequence(8 bytes, big-endian)]
func makeResultKey(account crypto.AccountId, seq uint64) []byte {
	return makeKey(prefixResult, account[:], encodeUint64(seq))
}
