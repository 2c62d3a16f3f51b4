package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/pkg/db"
)

var ErrEntryNotFound = errors.New("queue entry not found")

// QueueEntry is a pending verification request. It is keyed by
// (ScheduledHeight, Submitter); only the evidence is stored as the value.
type QueueEntry struct {
	ScheduledHeight block.Height
	Submitter       crypto.AccountId
	Evidence        []byte
}

// Queue is the height-indexed schedule of pending evidence.
type Queue struct {
	db.KVStore
}

func NewQueue(kv db.KVStore) *Queue {
	return &Queue{KVStore: kv}
}

// PutEntry inserts or overwrites the entry at (height, submitter).
func (q *Queue) PutEntry(w db.Writer, h block.Height, submitter crypto.AccountId, evidence []byte) error {
	if err := w.Put(makeQueueKey(h, submitter), evidence); err != nil {
		return fmt.Errorf("put queue entry: %w", err)
	}
	return nil
}

func (q *Queue) GetEntry(h block.Height, submitter crypto.AccountId) (QueueEntry, error) {
	v, err := q.Get(makeQueueKey(h, submitter))
	if err != nil {
		if isNotFound(err) {
			return QueueEntry{}, ErrEntryNotFound
		}
		return QueueEntry{}, fmt.Errorf("get queue entry: %w", err)
	}
	return QueueEntry{ScheduledHeight: h, Submitter: submitter, Evidence: v}, nil
}

func (q *Queue) HasEntry(h block.Height, submitter crypto.AccountId) (bool, error) {
	_, err := q.GetEntry(h, submitter)
	if errors.Is(err, ErrEntryNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DeleteEntry removes the entry through w, which is usually a batch shared
// with the rest of a state-transition step.
func (q *Queue) DeleteEntry(w Deleter, h block.Height, submitter crypto.AccountId) error {
	if err := w.Delete(makeQueueKey(h, submitter)); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

// EntriesAt returns every entry scheduled exactly at h, ordered by submitter.
func (q *Queue) EntriesAt(h block.Height) ([]QueueEntry, error) {
	return q.EntriesBetween(h, h)
}

// EntriesBetween returns the entries scheduled in [from, to], ordered by
// height and then submitter.
func (q *Queue) EntriesBetween(from, to block.Height) ([]QueueEntry, error) {
	if from > to {
		return nil, nil
	}
	iter, err := q.NewIterator(makeKey(prefixQueue, heightBytes(from)), queueUpperBound(to))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var entries []QueueEntry
	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("get iterator value: %w", err)
		}
		h, submitter, err := parseQueueKey(iter.Key())
		if err != nil {
			return nil, err
		}
		entries = append(entries, QueueEntry{ScheduledHeight: h, Submitter: submitter, Evidence: value})
	}
	return entries, nil
}

// PruneThrough atomically deletes every entry scheduled at or below h and
// returns how many were removed.
func (q *Queue) PruneThrough(h block.Height) (int, error) {
	iter, err := q.NewIterator([]byte{prefixQueue}, queueUpperBound(h))
	if err != nil {
		return 0, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	batch := q.NewBatch()
	defer batch.Close() //nolint:errcheck

	n := 0
	for iter.Next() {
		if err := batch.Delete(iter.Key()); err != nil {
			return 0, fmt.Errorf("batch delete key: %w", err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

// makeQueueKey creates a key for the queue store
// The key format is: [prefix(1 byte)][height(8 bytes, big-endian)][account(32 bytes)]
func makeQueueKey(h block.Height, submitter crypto.AccountId) []byte {
	return makeKey(prefixQueue, heightBytes(h), submitter[:])
}

func queueUpperBound(h block.Height) []byte {
	if h == block.Height(^uint64(0)) {
		return []byte{prefixQueue + 1}
	}
	return makeKey(prefixQueue, heightBytes(h+1))
}

func parseQueueKey(key []byte) (block.Height, crypto.AccountId, error) {
	var submitter crypto.AccountId
	if len(key) != 1+8+crypto.AccountIdSize || key[0] != prefixQueue {
		return 0, submitter, fmt.Errorf("malformed queue key %x", key)
	}
	h := block.Height(binary.BigEndian.Uint64(key[1:9]))
	copy(submitter[:], key[9:])
	return h, submitter, nil
}
