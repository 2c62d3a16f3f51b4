package attestation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/internal/testutils"
	"github.com/eigerco/attestd/pkg/codec"
)

func newReport(t *testing.T) (Report, ed25519.PrivateKey) {
	pub, prv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	verifier, err := crypto.VerifierKeyFrom(pub)
	require.NoError(t, err)
	return Report{
		ScheduledHeight: 105,
		Message:         []byte("ok"),
		Submitter:       testutils.RandomAccountId(t),
		Verifier:        verifier,
	}, prv
}

func TestSignAndVerify(t *testing.T) {
	report, prv := newReport(t)

	c, err := Sign(report, prv)
	require.NoError(t, err)
	assert.True(t, c.VerifySignature())

	tampered := c
	tampered.Report.Message = []byte("fail")
	assert.False(t, tampered.VerifySignature())

	tampered = c
	tampered.Report.ScheduledHeight++
	assert.False(t, tampered.VerifySignature())
}

func TestSignRejectsForeignVerifier(t *testing.T) {
	report, _ := newReport(t)
	_, other, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = Sign(report, other)
	assert.Error(t, err)
}

func TestCandidateResultWireFormat(t *testing.T) {
	report, prv := newReport(t)
	c, err := Sign(report, prv)
	require.NoError(t, err)

	decoded, err := DecodeCandidateResult(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
	assert.Equal(t, c.Hash(), decoded.Hash())
	assert.True(t, decoded.VerifySignature())

	_, err = DecodeCandidateResult(c.Encode()[:20])
	assert.ErrorIs(t, err, codec.ErrTruncated)

	_, err = DecodeCandidateResult(append(c.Encode(), 0))
	assert.ErrorIs(t, err, codec.ErrTrailingBytes)
}

func TestSigningPayloadIsDomainSeparated(t *testing.T) {
	report, _ := newReport(t)
	assert.NotEqual(t, report.Encode(), report.SigningPayload())
	assert.Equal(t, report.Encode(), report.SigningPayload()[len("attestd_report"):])
}

func TestDecodeReportRejectsOversizedMessage(t *testing.T) {
	report, _ := newReport(t)
	report.Message = make([]byte, 16*1024+1)

	_, err := DecodeReport(report.Encode())
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestSignRejectsOversizedMessage(t *testing.T) {
	report, prv := newReport(t)
	report.Message = make([]byte, 16*1024+1)

	_, err := Sign(report, prv)
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	report.Message = report.Message[:16*1024]
	_, err = Sign(report, prv)
	assert.NoError(t, err)
}
