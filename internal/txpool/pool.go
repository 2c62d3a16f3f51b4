// Package txpool holds candidate results that passed the pool-level check
// until a block producer includes them.
package txpool

import (
	"errors"
	"slices"
	"sync"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/pkg/log"
)

var (
	ErrAlreadyKnown   = errors.New("candidate result already in pool")
	ErrTooLowPriority = errors.New("priority too low to replace pooled candidate result")
)

// Validator runs the pool-level admission check.
type Validator interface {
	ValidateUnsigned(source statetransition.TransactionSource, c attestation.CandidateResult) (statetransition.ValidTransaction, error)
}

// Outcome of a successful Submit.
type Outcome struct {
	Hash      crypto.Hash
	Propagate bool
	// Replaced is set when the candidate took the slot of another one.
	Replaced *crypto.Hash
}

type entry struct {
	candidate  attestation.CandidateResult
	hash       crypto.Hash
	source     statetransition.TransactionSource
	valid      statetransition.ValidTransaction
	validUntil block.Height
	seq        uint64
}

// Pool admits at most one candidate result per provides tag.
type Pool struct {
	mu        sync.Mutex
	validator Validator
	height    block.Height
	seq       uint64

	byHash map[crypto.Hash]*entry
	byTag  map[string]crypto.Hash
}

func New(validator Validator, height block.Height) *Pool {
	return &Pool{
		validator: validator,
		height:    height,
		byHash:    make(map[crypto.Hash]*entry),
		byTag:     make(map[string]crypto.Hash),
	}
}

// Submit validates c and adds it to the pool. A candidate with the same
// provides tag as a pooled one replaces it only with a strictly higher priority.
func (p *Pool) Submit(source statetransition.TransactionSource, c attestation.CandidateResult) (Outcome, error) {
	hash := c.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[hash]; ok {
		return Outcome{}, ErrAlreadyKnown
	}

	valid, err := p.validator.ValidateUnsigned(source, c)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Hash: hash, Propagate: valid.Propagate}
	tag := string(valid.Provides)
	if existing, ok := p.byTag[tag]; ok {
		if valid.Priority <= p.byHash[existing].valid.Priority {
			return Outcome{}, ErrTooLowPriority
		}
		p.remove(existing)
		outcome.Replaced = &existing
	}

	p.seq++
	p.byHash[hash] = &entry{
		candidate:  c,
		hash:       hash,
		source:     source,
		valid:      valid,
		validUntil: p.height + block.Height(valid.Longevity),
		seq:        p.seq,
	}
	p.byTag[tag] = hash

	log.TxPool.Debug().
		Stringer("hash", hash).
		Stringer("source", source).
		Stringer("account", c.Report.Submitter).
		Msg("candidate result pooled")
	return outcome, nil
}

// OnNewHeight re-validates every pooled candidate at height h. Failing ones
// are dropped; those whose validity window has passed get a fresh one.
// It returns the number of dropped candidates.
func (p *Pool) OnNewHeight(h block.Height) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.height = h
	dropped := 0
	for hash, e := range p.byHash {
		valid, err := p.validator.ValidateUnsigned(e.source, e.candidate)
		if err != nil {
			log.TxPool.Debug().Stringer("hash", hash).Err(err).Msg("candidate result dropped")
			p.remove(hash)
			dropped++
			continue
		}
		e.valid = valid
		if e.validUntil <= h {
			e.validUntil = h + block.Height(valid.Longevity)
		}
	}
	return dropped
}

// Ready returns up to max candidates, highest priority first and then in
// arrival order. max <= 0 means all of them.
func (p *Pool) Ready(max int) []attestation.CandidateResult {
	p.mu.Lock()
	entries := make([]*entry, 0, len(p.byHash))
	for _, e := range p.byHash {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		if a.valid.Priority != b.valid.Priority {
			if a.valid.Priority > b.valid.Priority {
				return -1
			}
			return 1
		}
		if a.seq < b.seq {
			return -1
		}
		return 1
	})
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}

	ready := make([]attestation.CandidateResult, len(entries))
	for i, e := range entries {
		ready[i] = e.candidate
	}
	return ready
}

func (p *Pool) Remove(hashes ...crypto.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		p.remove(h)
	}
}

func (p *Pool) remove(hash crypto.Hash) {
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	tag := string(e.valid.Provides)
	if p.byTag[tag] == hash {
		delete(p.byTag, tag)
	}
}

// Has reports whether a candidate for the queue entry (h, account) is pooled.
func (p *Pool) Has(h block.Height, account crypto.AccountId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, ok := p.byTag[string(account[:])]
	if !ok {
		return false
	}
	return p.byHash[hash].candidate.Report.ScheduledHeight == h
}

// HasSubmitter reports whether a candidate for any queue entry of account is pooled.
func (p *Pool) HasSubmitter(account crypto.AccountId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.byTag[string(account[:])]
	return ok
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}
