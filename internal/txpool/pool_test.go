package txpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/internal/testutils"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) ValidateUnsigned(source statetransition.TransactionSource, c attestation.CandidateResult) (statetransition.ValidTransaction, error) {
	args := m.Called(source, c)
	return args.Get(0).(statetransition.ValidTransaction), args.Error(1)
}

func candidate(t *testing.T, h block.Height, account crypto.AccountId, msg string) attestation.CandidateResult {
	key, prv := testutils.RandomVerifier(t)
	c, err := attestation.Sign(attestation.Report{ScheduledHeight: h, Message: []byte(msg), Submitter: account, Verifier: key}, prv)
	require.NoError(t, err)
	return c
}

func validFor(c attestation.CandidateResult, priority uint64) statetransition.ValidTransaction {
	return statetransition.ValidTransaction{
		Priority:  priority,
		Provides:  c.Report.Submitter[:],
		Longevity: 10,
		Propagate: true,
	}
}

func TestSubmitAndDedup(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 105)
	alice := testutils.RandomAccountId(t)
	c := candidate(t, 105, alice, "ok")
	v.On("ValidateUnsigned", statetransition.SourceLocal, c).Return(validFor(c, 1), nil).Once()

	outcome, err := pool.Submit(statetransition.SourceLocal, c)
	require.NoError(t, err)
	assert.True(t, outcome.Propagate)
	assert.Equal(t, c.Hash(), outcome.Hash)
	assert.Nil(t, outcome.Replaced)

	_, err = pool.Submit(statetransition.SourceExternal, c)
	assert.ErrorIs(t, err, ErrAlreadyKnown)

	assert.Equal(t, 1, pool.Len())
	assert.True(t, pool.Has(105, alice))
	assert.False(t, pool.Has(106, alice))
	v.AssertExpectations(t)
}

func TestHasSubmitter(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 106)
	alice, bob := testutils.RandomAccountId(t), testutils.RandomAccountId(t)
	c := candidate(t, 105, alice, "ok")
	v.On("ValidateUnsigned", statetransition.SourceLocal, c).Return(validFor(c, 1), nil).Once()

	assert.False(t, pool.HasSubmitter(alice))
	_, err := pool.Submit(statetransition.SourceLocal, c)
	require.NoError(t, err)

	assert.True(t, pool.HasSubmitter(alice))
	assert.False(t, pool.Has(106, alice), "slot is held by the entry at 105")
	assert.False(t, pool.HasSubmitter(bob))

	pool.Remove(c.Hash())
	assert.False(t, pool.HasSubmitter(alice))
}

func TestSubmitRejected(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 105)
	c := candidate(t, 105, testutils.RandomAccountId(t), "ok")
	v.On("ValidateUnsigned", statetransition.SourceExternal, c).Return(statetransition.ValidTransaction{}, statetransition.ErrStale)

	_, err := pool.Submit(statetransition.SourceExternal, c)
	assert.ErrorIs(t, err, statetransition.ErrStale)
	assert.Zero(t, pool.Len())
}

func TestSubmitSameProvidesTag(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 105)
	alice := testutils.RandomAccountId(t)

	first := candidate(t, 105, alice, "ok")
	same := candidate(t, 105, alice, "ok")
	higher := candidate(t, 105, alice, "ok")
	v.On("ValidateUnsigned", mock.Anything, first).Return(validFor(first, 5), nil)
	v.On("ValidateUnsigned", mock.Anything, same).Return(validFor(same, 5), nil)
	v.On("ValidateUnsigned", mock.Anything, higher).Return(validFor(higher, 6), nil)

	_, err := pool.Submit(statetransition.SourceLocal, first)
	require.NoError(t, err)

	_, err = pool.Submit(statetransition.SourceExternal, same)
	assert.ErrorIs(t, err, ErrTooLowPriority)

	outcome, err := pool.Submit(statetransition.SourceExternal, higher)
	require.NoError(t, err)
	require.NotNil(t, outcome.Replaced)
	assert.Equal(t, first.Hash(), *outcome.Replaced)

	assert.Equal(t, []attestation.CandidateResult{higher}, pool.Ready(0))
}

func TestReadyOrder(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 105)

	a := candidate(t, 105, testutils.RandomAccountId(t), "a")
	b := candidate(t, 105, testutils.RandomAccountId(t), "b")
	c := candidate(t, 105, testutils.RandomAccountId(t), "c")
	v.On("ValidateUnsigned", mock.Anything, a).Return(validFor(a, 1), nil)
	v.On("ValidateUnsigned", mock.Anything, b).Return(validFor(b, 2), nil)
	v.On("ValidateUnsigned", mock.Anything, c).Return(validFor(c, 1), nil)

	for _, x := range []attestation.CandidateResult{a, b, c} {
		_, err := pool.Submit(statetransition.SourceLocal, x)
		require.NoError(t, err)
	}

	assert.Equal(t, []attestation.CandidateResult{b, a, c}, pool.Ready(0))
	assert.Equal(t, []attestation.CandidateResult{b, a}, pool.Ready(2))

	pool.Remove(b.Hash(), a.Hash())
	assert.Equal(t, []attestation.CandidateResult{c}, pool.Ready(0))
}

func TestOnNewHeightRevalidates(t *testing.T) {
	v := &mockValidator{}
	pool := New(v, 105)
	keep := candidate(t, 105, testutils.RandomAccountId(t), "keep")
	drop := candidate(t, 105, testutils.RandomAccountId(t), "drop")

	v.On("ValidateUnsigned", mock.Anything, keep).Return(validFor(keep, 1), nil)
	v.On("ValidateUnsigned", mock.Anything, drop).Return(validFor(drop, 1), nil).Once()
	v.On("ValidateUnsigned", mock.Anything, drop).Return(statetransition.ValidTransaction{}, statetransition.ErrExpired)

	for _, x := range []attestation.CandidateResult{keep, drop} {
		_, err := pool.Submit(statetransition.SourceLocal, x)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, pool.OnNewHeight(108))
	assert.Equal(t, []attestation.CandidateResult{keep}, pool.Ready(0))

	pool.mu.Lock()
	assert.Equal(t, block.Height(115), pool.byHash[keep.Hash()].validUntil)
	pool.mu.Unlock()

	pool.OnNewHeight(115)
	pool.mu.Lock()
	assert.Equal(t, block.Height(125), pool.byHash[keep.Hash()].validUntil)
	pool.mu.Unlock()
}
