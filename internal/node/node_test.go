package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/internal/keystore"
	"github.com/eigerco/attestd/internal/oracle"
	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/internal/testutils"
	"github.com/eigerco/attestd/internal/txpool"
	"github.com/eigerco/attestd/pkg/db/pebble"
)

// testOracle answers 200 {"message":"ok"} unless failing or hanging is set,
// or message overrides the verdict.
type testOracle struct {
	*httptest.Server
	failing atomic.Bool
	hanging atomic.Bool
	message atomic.Pointer[string]
	calls   atomic.Int32
	release chan struct{}
}

func newTestOracle(t *testing.T) *testOracle {
	o := &testOracle{release: make(chan struct{})}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.calls.Add(1)
		if o.hanging.Load() {
			select {
			case <-r.Context().Done():
			case <-o.release:
			}
			return
		}
		if o.failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		message := "ok"
		if m := o.message.Load(); m != nil {
			message = *m
		}
		body, _ := json.Marshal(map[string]any{"message": message, "status_code": 200})
		_, _ = w.Write(body)
	}))
	t.Cleanup(o.Close)
	t.Cleanup(func() { close(o.release) })
	return o
}

// start runs n until the test ends.
func start(t *testing.T, n *Node) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, payload []byte, _ ed25519.PublicKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return 1
}

type harness struct {
	node   *Node
	oracle *testOracle
	key    keystore.Key
}

func newHarness(t *testing.T, lifetime uint64) *harness {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	pub, prv := testutils.RandomVerifier(t)
	key := keystore.Key{Public: pub, Private: prv}

	cfg := DefaultConfig()
	cfg.Validator = true
	cfg.Runtime.VerifyDelay = 5
	cfg.Runtime.EvidenceLifetime = lifetime

	o := newTestOracle(t)
	n, err := New(cfg, kv, oracle.NewHTTPClient(o.URL), keystore.New(key), nil)
	require.NoError(t, err)
	require.NoError(t, n.Runtime().RegisterVerifierKey(statetransition.Root(), pub))
	start(t, n)
	return &harness{node: n, oracle: o, key: key}
}

// produceUntil produces blocks up to height, letting the worker finish with
// each one before the next.
func (h *harness) produceUntil(t *testing.T, height block.Height) {
	for h.node.Head().Height < height {
		header, err := h.node.ProduceBlock(context.Background())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return h.node.Processed() >= header.Height }, 5*time.Second, time.Millisecond)
	}
}

func TestVerifiedEvidenceIsAccepted(t *testing.T) {
	h := newHarness(t, 20)
	alice := testutils.RandomAccountId(t)
	h.produceUntil(t, 100)

	ev, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)
	assert.Equal(t, block.Height(105), ev.ScheduledHeight)

	h.produceUntil(t, 104)
	assert.Zero(t, h.oracle.calls.Load())

	h.produceUntil(t, 105)
	assert.Equal(t, int32(1), h.oracle.calls.Load())
	assert.True(t, h.node.Pool().Has(105, alice))

	h.produceUntil(t, 106)
	reports, err := h.node.Runtime().ResultsFor(alice)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []byte("ok"), reports[0].Message)
	assert.Equal(t, block.Height(105), reports[0].ScheduledHeight)
	assert.Equal(t, h.key.Public, reports[0].Verifier)
	assert.Zero(t, h.node.Pool().Len())

	// consumed entries are not verified again
	h.produceUntil(t, 110)
	assert.Equal(t, int32(1), h.oracle.calls.Load())
}

func TestOracleFailureIsRetriedNextBlock(t *testing.T) {
	h := newHarness(t, 20)
	alice := testutils.RandomAccountId(t)
	h.produceUntil(t, 100)

	_, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)

	h.oracle.failing.Store(true)
	h.produceUntil(t, 105)
	assert.Equal(t, int32(1), h.oracle.calls.Load())
	assert.Zero(t, h.node.Pool().Len())

	h.oracle.failing.Store(false)
	h.produceUntil(t, 106)
	assert.Equal(t, int32(2), h.oracle.calls.Load())
	assert.True(t, h.node.Pool().Has(105, alice))

	h.produceUntil(t, 107)
	reports, err := h.node.Runtime().ResultsFor(alice)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []byte("ok"), reports[0].Message)
}

func TestOversizedVerdictIsNotSubmitted(t *testing.T) {
	h := newHarness(t, 2)
	alice := testutils.RandomAccountId(t)
	h.produceUntil(t, 100)

	_, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)

	huge := strings.Repeat("a", 20*1024)
	h.oracle.message.Store(&huge)
	h.produceUntil(t, 106)
	assert.Equal(t, int32(2), h.oracle.calls.Load(), "rejected like any malformed answer, retried next block")
	assert.Zero(t, h.node.Pool().Len())

	h.produceUntil(t, 110)
	reports, err := h.node.Runtime().ResultsFor(alice)
	require.NoError(t, err, "results stay readable")
	assert.Empty(t, reports)
}

func TestBlockProductionDoesNotWaitForOracle(t *testing.T) {
	h := newHarness(t, 20)
	alice := testutils.RandomAccountId(t)

	_, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)

	h.oracle.hanging.Store(true)
	for range 5 {
		_, err := h.node.ProduceBlock(context.Background())
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return h.oracle.calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 3 {
			_, err := h.node.ProduceBlock(context.Background())
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("block production waited for the oracle")
	}
	assert.Equal(t, block.Height(8), h.node.Head().Height)
	assert.Equal(t, int32(1), h.oracle.calls.Load(), "the worker is still inside the first call")
}

func TestUnresolvedEntryExpires(t *testing.T) {
	h := newHarness(t, 2)
	alice := testutils.RandomAccountId(t)
	h.produceUntil(t, 100)

	_, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)

	h.oracle.failing.Store(true)
	h.produceUntil(t, 108)
	assert.Equal(t, int32(3), h.oracle.calls.Load(), "tried at 105, 106 and 107")

	c, err := attestation.Sign(attestation.Report{
		ScheduledHeight: 105,
		Message:         []byte("ok"),
		Submitter:       alice,
		Verifier:        h.key.Public,
	}, h.key.Private)
	require.NoError(t, err)
	assert.ErrorIs(t, h.node.SubmitCandidate(context.Background(), c), statetransition.ErrExpired)
}

func TestRacingCandidatesAcceptedOnce(t *testing.T) {
	h := newHarness(t, 20)
	alice := testutils.RandomAccountId(t)
	other := keystore.Key{}
	other.Public, other.Private = testutils.RandomVerifier(t)
	require.NoError(t, h.node.Runtime().RegisterVerifierKey(statetransition.Root(), other.Public))

	b := &recordingBroadcaster{}
	h.node.SetBroadcaster(b)

	_, err := h.node.Runtime().SubmitEvidence(statetransition.Signed(alice), []byte("quote-123"))
	require.NoError(t, err)
	h.produceUntil(t, 5)
	require.True(t, h.node.Pool().Has(5, alice))
	assert.Len(t, b.payloads, 1)

	// a peer's candidate for the same entry cannot take the slot
	peer, err := attestation.Sign(attestation.Report{ScheduledHeight: 5, Message: []byte("ok"), Submitter: alice, Verifier: other.Public}, other.Private)
	require.NoError(t, err)
	_, err = h.node.Pool().Submit(statetransition.SourceExternal, peer)
	assert.ErrorIs(t, err, txpool.ErrTooLowPriority)

	h.produceUntil(t, 6)

	// after inclusion the entry is consumed
	h.node.HandlePeerCandidate(context.Background(), peer.Encode(), nil)
	assert.Zero(t, h.node.Pool().Len())
	assert.ErrorIs(t, h.node.Runtime().SubmitResult(statetransition.None(), peer), statetransition.ErrStale)

	reports, err := h.node.Runtime().ResultsFor(alice)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestHandlePeerCandidateMalformed(t *testing.T) {
	h := newHarness(t, 20)
	h.node.HandlePeerCandidate(context.Background(), []byte{1, 2, 3}, nil)
	assert.Zero(t, h.node.Pool().Len())
}

func TestNonValidatorDoesNotVerify(t *testing.T) {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	o := newTestOracle(t)
	cfg := DefaultConfig()
	cfg.Runtime.VerifyDelay = 1
	n, err := New(cfg, kv, oracle.NewHTTPClient(o.URL), keystore.New(), nil)
	require.NoError(t, err)
	start(t, n)

	_, err = n.Runtime().SubmitEvidence(statetransition.Signed(crypto.AccountId{1}), []byte("x"))
	require.NoError(t, err)
	for range 3 {
		_, err := n.ProduceBlock(context.Background())
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return n.Processed() == 3 }, 5*time.Second, time.Millisecond)
	assert.Zero(t, o.calls.Load())
}

func TestRunAuthorsBlocks(t *testing.T) {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer kv.Close() //nolint:errcheck

	cfg := DefaultConfig()
	cfg.Author = true
	cfg.BlockTime = time.Millisecond
	n, err := New(cfg, kv, oracle.NewHTTPClient(newTestOracle(t).URL), keystore.New(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return n.Processed() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunStopsWithContext(t *testing.T) {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer kv.Close() //nolint:errcheck

	n, err := New(DefaultConfig(), kv, oracle.NewHTTPClient(newTestOracle(t).URL), keystore.New(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, n.Run(ctx))
}
