// Package worker resolves due queue entries against the oracle and proposes
// signed candidate results. It reads ledger state but never writes it.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/keystore"
	"github.com/eigerco/attestd/internal/metrics"
	"github.com/eigerco/attestd/internal/oracle"
	"github.com/eigerco/attestd/internal/store"
	"github.com/eigerco/attestd/pkg/log"
)

// QueueReader gives read access to the evidence queue.
type QueueReader interface {
	PendingEntries(from, to block.Height) ([]store.QueueEntry, error)
}

// PendingChecker reports whether a candidate for the account already holds
// its admission slot. A second candidate for the same account, whatever its
// height, could not be admitted until that one leaves the pool.
type PendingChecker interface {
	HasSubmitter(account crypto.AccountId) bool
}

// Submitter hands a candidate result to admission and to peers.
type Submitter interface {
	SubmitCandidate(ctx context.Context, c attestation.CandidateResult) error
}

type Config struct {
	// Validator enables the worker; other nodes only log.
	Validator        bool
	EvidenceLifetime uint64
}

type Worker struct {
	cfg       Config
	queue     QueueReader
	pending   PendingChecker
	oracle    oracle.Oracle
	keys      *keystore.KeyStore
	submitter Submitter
	metrics   *metrics.Metrics

	heights   chan block.Height
	processed atomic.Uint64
}

func New(cfg Config, queue QueueReader, pending PendingChecker, o oracle.Oracle, keys *keystore.KeyStore, submitter Submitter, m *metrics.Metrics) *Worker {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Worker{
		cfg:       cfg,
		queue:     queue,
		pending:   pending,
		oracle:    o,
		keys:      keys,
		submitter: submitter,
		metrics:   m,
		heights:   make(chan block.Height, 1),
	}
}

// Notify hands an imported height to Run without waiting. A height that Run
// has not picked up yet is replaced, since the scan window of the newer
// height covers every entry the older one would still resolve.
func (w *Worker) Notify(h block.Height) {
	for {
		select {
		case w.heights <- h:
			return
		default:
		}
		select {
		case <-w.heights:
		default:
		}
	}
}

// Run processes notified heights one at a time until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case h := <-w.heights:
			w.OnBlockImported(ctx, h)
			w.processed.Store(uint64(h))
		}
	}
}

// Processed returns the last height Run finished with.
func (w *Worker) Processed() block.Height {
	return block.Height(w.processed.Load())
}

// OnBlockImported processes the entries that are due at h and still within
// their lifetime, so an entry that failed on an earlier block is tried again.
// Entries are handled one at a time. It returns the number of candidates handed
// to the submitter.
func (w *Worker) OnBlockImported(ctx context.Context, h block.Height) int {
	if !w.cfg.Validator {
		log.Worker.Trace().Uint64("height", uint64(h)).Msg("skipping verification, not a validator")
		return 0
	}

	entries, err := w.queue.PendingEntries(h.SaturatingSub(w.cfg.EvidenceLifetime), h)
	if err != nil {
		log.Worker.Error().Err(err).Uint64("height", uint64(h)).Msg("failed to read evidence queue")
		return 0
	}

	produced := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return produced
		}
		if w.pending.HasSubmitter(entry.Submitter) {
			log.Worker.Trace().
				Uint64("scheduled", uint64(entry.ScheduledHeight)).
				Stringer("account", entry.Submitter).
				Msg("admission slot taken, deferring")
			continue
		}
		if w.process(ctx, entry) {
			produced++
		}
	}
	return produced
}

func (w *Worker) process(ctx context.Context, entry store.QueueEntry) bool {
	logger := log.Worker.With().
		Uint64("scheduled", uint64(entry.ScheduledHeight)).
		Stringer("account", entry.Submitter).
		Logger()

	message, err := w.oracle.Verify(ctx, entry.Evidence)
	w.metrics.OracleCalls.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		logger.Warn().Err(err).Msg("oracle verification failed, retrying on next block")
		return false
	}

	key, ok := w.keys.Any()
	if !ok {
		logger.Warn().Msg("no local signing key, abandoning verification for this block")
		return false
	}

	c, err := attestation.Sign(attestation.Report{
		ScheduledHeight: entry.ScheduledHeight,
		Message:         message,
		Submitter:       entry.Submitter,
		Verifier:        key.Public,
	}, key.Private)
	if err != nil {
		logger.Error().Err(err).Msg("failed to sign report")
		return false
	}

	if err := w.submitter.SubmitCandidate(ctx, c); err != nil {
		logger.Debug().Err(err).Msg("candidate result not admitted")
		return false
	}
	w.metrics.CandidatesProduced.Inc()
	logger.Info().Stringer("verifier", key.Public).Msg("candidate result submitted")
	return true
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, oracle.ErrDeadlineReached):
		return "deadline"
	case errors.Is(err, oracle.ErrMalformedResponse):
		return "malformed"
	default:
		return "io"
	}
}
