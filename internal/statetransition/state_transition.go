// Package statetransition is the deterministic part of the verification
// pipeline: evidence submission, verifier key registration and admission of
// candidate results into ledger state.
package statetransition

import (
	"fmt"
	"sync"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/constants"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/store"
	"github.com/eigerco/attestd/pkg/db"
	"github.com/eigerco/attestd/pkg/log"
)

type Config struct {
	VerifyDelay          uint64
	EvidenceLifetime     uint64
	UnsignedPriority     uint64
	Longevity            uint64
	MaxResultsPerAccount uint64
}

func DefaultConfig() Config {
	return Config{
		VerifyDelay:          constants.VerifyDelay,
		EvidenceLifetime:     constants.EvidenceLifetime,
		UnsignedPriority:     constants.UnsignedPriority,
		Longevity:            constants.UnsignedLongevity,
		MaxResultsPerAccount: constants.MaxResultsPerAccount,
	}
}

// Runtime owns the evidence queue, the verifier registry and the results.
// Calls are serialized, so every node applies them in the order they arrive.
type Runtime struct {
	mu sync.RWMutex

	cfg      Config
	kv       db.KVStore
	queue    *store.Queue
	registry *store.Registry
	results  *store.Results
	height   block.Height

	observers []func(Event)
}

// New creates a runtime over kv positioned at height.
func New(kv db.KVStore, cfg Config, height block.Height) *Runtime {
	return &Runtime{
		cfg:      cfg,
		kv:       kv,
		queue:    store.NewQueue(kv),
		registry: store.NewRegistry(kv),
		results:  store.NewResults(kv, cfg.MaxResultsPerAccount),
		height:   height,
	}
}

// Subscribe registers fn for every emitted event. fn runs while the runtime
// is locked and must not call back into it.
func (r *Runtime) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Runtime) emit(e Event) {
	for _, fn := range r.observers {
		fn(e)
	}
}

func (r *Runtime) Config() Config {
	return r.cfg
}

func (r *Runtime) Height() block.Height {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.height
}

// OnInitialize advances the ledger to height and drops the queue entries
// whose lifetime has ended.
func (r *Runtime) OnInitialize(height block.Height) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.height = height
	if uint64(height) <= r.cfg.EvidenceLifetime {
		return nil
	}
	// entries with scheduled + lifetime < height
	n, err := r.queue.PruneThrough(height - block.Height(r.cfg.EvidenceLifetime) - 1)
	if err != nil {
		return fmt.Errorf("prune expired entries: %w", err)
	}
	if n > 0 {
		log.Runtime.Debug().Uint64("height", uint64(height)).Int("count", n).Msg("expired queue entries pruned")
		r.emit(EntriesExpired{Height: height, Count: n})
	}
	return nil
}

// SubmitEvidence queues evidence for verification at height + VerifyDelay.
// A second submission by the same account for the same target height
// overwrites the first.
func (r *Runtime) SubmitEvidence(origin Origin, evidence []byte) (VerificationRequested, error) {
	account, ok := origin.Account()
	if !ok {
		return VerificationRequested{}, ErrNotAuthenticated
	}
	id, err := EvidenceID(evidence)
	if err != nil {
		return VerificationRequested{}, fmt.Errorf("evidence id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	scheduled := r.height + block.Height(r.cfg.VerifyDelay)
	if err := r.queue.PutEntry(r.kv, scheduled, account, evidence); err != nil {
		return VerificationRequested{}, err
	}

	ev := VerificationRequested{
		Account:         account,
		Evidence:        evidence,
		EvidenceID:      id,
		ScheduledHeight: scheduled,
	}
	log.Runtime.Debug().
		Stringer("account", account).
		Stringer("evidence_id", id).
		Uint64("scheduled", uint64(scheduled)).
		Msg("verification requested")
	r.emit(ev)
	return ev, nil
}

// RegisterVerifierKey appends key to the registry. Duplicates are appended too.
func (r *Runtime) RegisterVerifierKey(origin Origin, key crypto.VerifierKey) error {
	if !origin.IsRoot() {
		return ErrNotAuthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.registry.AppendKey(key); err != nil {
		return err
	}
	log.Runtime.Info().Stringer("key", key).Msg("verifier key registered")
	r.emit(VerifierKeyRegistered{Key: key})
	return nil
}

// ValidateUnsigned is the pool-level check of a candidate result. It does not
// consult the registry; that is left to SubmitResult.
func (r *Runtime) ValidateUnsigned(source TransactionSource, c attestation.CandidateResult) (ValidTransaction, error) {
	if err := c.Report.CheckSize(); err != nil {
		return ValidTransaction{}, err
	}
	if !c.VerifySignature() {
		return ValidTransaction{}, ErrBadSignature
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkEntry(c.Report); err != nil {
		log.Runtime.Trace().Stringer("source", source).Err(err).Msg("candidate result rejected")
		return ValidTransaction{}, err
	}
	return ValidTransaction{
		Priority:  r.cfg.UnsignedPriority,
		Provides:  c.Report.Submitter[:],
		Longevity: r.cfg.Longevity,
		Propagate: true,
	}, nil
}

// SubmitResult is the execution-time check. On success the report is added to
// the submitter's results and the queue entry is consumed in the same batch,
// so any later candidate for the entry is stale.
func (r *Runtime) SubmitResult(origin Origin, c attestation.CandidateResult) error {
	if !origin.IsNone() {
		return ErrNotAuthorized
	}
	if err := c.Report.CheckSize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	known, err := r.registry.Contains(c.Report.Verifier)
	if err != nil {
		return err
	}
	if !known {
		return ErrUnknownVerifier
	}
	if !c.VerifySignature() {
		return ErrBadSignature
	}
	if err := r.checkEntry(c.Report); err != nil {
		return err
	}

	batch := r.kv.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := r.results.AppendResult(batch, c.Report); err != nil {
		return err
	}
	if err := r.queue.DeleteEntry(batch, c.Report.ScheduledHeight, c.Report.Submitter); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}

	log.Runtime.Info().
		Stringer("account", c.Report.Submitter).
		Uint64("scheduled", uint64(c.Report.ScheduledHeight)).
		Stringer("verifier", c.Report.Verifier).
		Msg("verification result accepted")
	r.emit(ResultAccepted{Report: c.Report})
	return nil
}

// checkEntry runs the queue entry lifecycle checks. The height window is
// checked first: an entry past its lifetime is Expired whether or not it has
// been pruned yet.
func (r *Runtime) checkEntry(report attestation.Report) error {
	if uint64(r.height) > uint64(report.ScheduledHeight) &&
		uint64(r.height)-uint64(report.ScheduledHeight) > r.cfg.EvidenceLifetime {
		return ErrExpired
	}
	if report.ScheduledHeight > r.height {
		return ErrFromFuture
	}
	ok, err := r.queue.HasEntry(report.ScheduledHeight, report.Submitter)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStale
	}
	return nil
}

// PendingEntries returns the queue entries scheduled in [from, to].
func (r *Runtime) PendingEntries(from, to block.Height) ([]store.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queue.EntriesBetween(from, to)
}

func (r *Runtime) ResultsFor(account crypto.AccountId) ([]attestation.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.results.ResultsFor(account)
}

func (r *Runtime) VerifierKeys() ([]crypto.VerifierKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.Keys()
}
