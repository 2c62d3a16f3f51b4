// Package node wires the state transition, the admission pool, the
// verification worker and the peer network into a running node.
package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/chain"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/internal/keystore"
	"github.com/eigerco/attestd/internal/metrics"
	"github.com/eigerco/attestd/internal/oracle"
	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/internal/txpool"
	"github.com/eigerco/attestd/internal/worker"
	"github.com/eigerco/attestd/pkg/db"
	"github.com/eigerco/attestd/pkg/log"
)

type Config struct {
	Runtime statetransition.Config
	// Validator enables the verification worker.
	Validator bool
	// Author enables local block production every BlockTime.
	Author    bool
	BlockTime time.Duration
	// MaxBlockResults caps the candidate results executed per block.
	MaxBlockResults int
}

func DefaultConfig() Config {
	return Config{
		Runtime:         statetransition.DefaultConfig(),
		BlockTime:       6 * time.Second,
		MaxBlockResults: 256,
	}
}

// Broadcaster relays encoded candidate results to peers.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte, exclude ed25519.PublicKey) int
}

type Node struct {
	cfg     Config
	chain   *chain.BlockService
	runtime *statetransition.Runtime
	pool    *txpool.Pool
	worker  *worker.Worker
	metrics *metrics.Metrics

	importMu    sync.Mutex
	broadcaster Broadcaster
}

func New(cfg Config, kv db.KVStore, o oracle.Oracle, keys *keystore.KeyStore, m *metrics.Metrics) (*Node, error) {
	if m == nil {
		m = metrics.NewNop()
	}
	bs, err := chain.NewBlockService(kv)
	if err != nil {
		return nil, err
	}
	height := bs.Head().Height

	n := &Node{
		cfg:     cfg,
		chain:   bs,
		runtime: statetransition.New(kv, cfg.Runtime, height),
		metrics: m,
	}
	n.pool = txpool.New(n.runtime, height)
	n.worker = worker.New(worker.Config{
		Validator:        cfg.Validator,
		EvidenceLifetime: cfg.Runtime.EvidenceLifetime,
	}, n.runtime, n.pool, o, keys, n, m)
	n.runtime.Subscribe(n.onEvent)
	m.Height.Set(float64(height))
	return n, nil
}

// SetBroadcaster enables relaying of admitted candidate results.
func (n *Node) SetBroadcaster(b Broadcaster) {
	n.broadcaster = b
}

func (n *Node) Runtime() *statetransition.Runtime { return n.runtime }

func (n *Node) Pool() *txpool.Pool { return n.pool }

func (n *Node) Head() block.Header { return n.chain.Head() }

func (n *Node) Config() Config { return n.cfg }

// SubmitCandidate admits a locally produced candidate result and relays it.
func (n *Node) SubmitCandidate(ctx context.Context, c attestation.CandidateResult) error {
	return n.submit(ctx, statetransition.SourceLocal, c, nil)
}

// HandlePeerCandidate decodes and admits a candidate result received from a peer.
func (n *Node) HandlePeerCandidate(ctx context.Context, payload []byte, from ed25519.PublicKey) {
	c, err := attestation.DecodeCandidateResult(payload)
	if err != nil {
		log.Network.Debug().Err(err).Msg("undecodable candidate result from peer")
		n.metrics.AdmissionRejected.WithLabelValues("malformed").Inc()
		return
	}
	if err := n.submit(ctx, statetransition.SourceExternal, c, from); err != nil && !errors.Is(err, txpool.ErrAlreadyKnown) {
		log.Network.Debug().Err(err).Msg("peer candidate result rejected")
	}
}

func (n *Node) submit(ctx context.Context, source statetransition.TransactionSource, c attestation.CandidateResult, from ed25519.PublicKey) error {
	outcome, err := n.pool.Submit(source, c)
	if err != nil {
		n.metrics.AdmissionRejected.WithLabelValues(rejectReason(err)).Inc()
		return err
	}
	n.metrics.PoolSize.Set(float64(n.pool.Len()))
	if outcome.Propagate && n.broadcaster != nil {
		peers := n.broadcaster.Broadcast(ctx, c.Encode(), from)
		log.Network.Debug().Stringer("hash", outcome.Hash).Int("peers", peers).Msg("candidate result relayed")
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, txpool.ErrAlreadyKnown):
		return "already_known"
	case errors.Is(err, txpool.ErrTooLowPriority):
		return "too_low_priority"
	}
	if code := statetransition.ErrorCode(err); code != "" {
		return strings.ToLower(code)
	}
	return "other"
}

// ImportBlock makes header the head, advances the state transition and the
// pool to its height, and hands the height to the worker. Oracle calls run in
// the worker loop started by Run, never under the import lock.
func (n *Node) ImportBlock(header block.Header) error {
	n.importMu.Lock()
	defer n.importMu.Unlock()
	return n.importBlock(header)
}

func (n *Node) importBlock(header block.Header) error {
	if err := n.chain.Import(header); err != nil {
		return err
	}
	if err := n.runtime.OnInitialize(header.Height); err != nil {
		return fmt.Errorf("initialize height %d: %w", header.Height, err)
	}
	dropped := n.pool.OnNewHeight(header.Height)
	n.metrics.Height.Set(float64(header.Height))
	n.metrics.PoolSize.Set(float64(n.pool.Len()))
	log.Root.Debug().
		Uint64("height", uint64(header.Height)).
		Stringer("hash", header.Hash()).
		Int("dropped", dropped).
		Msg("block imported")

	n.worker.Notify(header.Height)
	return nil
}

// ProduceBlock executes the ready candidate results at the current height
// and imports the next block committing to the accepted ones. Candidates
// that fail execution are dropped from the pool.
func (n *Node) ProduceBlock(ctx context.Context) (block.Header, error) {
	if err := ctx.Err(); err != nil {
		return block.Header{}, err
	}
	n.importMu.Lock()
	defer n.importMu.Unlock()

	ready := n.pool.Ready(n.cfg.MaxBlockResults)
	included := make([]crypto.Hash, 0, len(ready))
	attempted := make([]crypto.Hash, 0, len(ready))
	for _, c := range ready {
		hash := c.Hash()
		attempted = append(attempted, hash)
		if err := n.runtime.SubmitResult(statetransition.None(), c); err != nil {
			n.metrics.AdmissionRejected.WithLabelValues(rejectReason(err)).Inc()
			log.Runtime.Debug().Err(err).Stringer("hash", hash).Msg("candidate result failed execution")
			continue
		}
		included = append(included, hash)
	}
	n.pool.Remove(attempted...)

	header := n.chain.NextHeader(included)
	if err := n.importBlock(header); err != nil {
		return block.Header{}, err
	}
	return header, nil
}

// Run drives the verification worker and, when the node is an author,
// produces a block every BlockTime, until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.worker.Run(ctx) })
	if n.cfg.Author {
		g.Go(func() error { return n.author(ctx) })
	}
	return g.Wait()
}

// Processed returns the last height the worker finished with.
func (n *Node) Processed() block.Height { return n.worker.Processed() }

func (n *Node) author(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("produce block: %w", err)
			}
		}
	}
}

func (n *Node) onEvent(e statetransition.Event) {
	switch ev := e.(type) {
	case statetransition.ResultAccepted:
		n.metrics.ResultsAccepted.Inc()
	case statetransition.VerificationRequested:
		log.Root.Info().
			Stringer("account", ev.Account).
			Stringer("evidence_id", ev.EvidenceID).
			Uint64("scheduled", uint64(ev.ScheduledHeight)).
			Msg("verification requested")
	}
}
