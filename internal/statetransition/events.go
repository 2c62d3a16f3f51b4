package statetransition

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/eigerco/attestd/internal/attestation"
	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/crypto"
)

type Event interface {
	EventName() string
}

// VerificationRequested is emitted when evidence is queued.
type VerificationRequested struct {
	Account  crypto.AccountId
	Evidence []byte
	// EvidenceID is a CIDv1 (raw, sha2-256) of the evidence, so observers can
	// refer to it without carrying the bytes around.
	EvidenceID      cid.Cid
	ScheduledHeight block.Height
}

func (VerificationRequested) EventName() string { return "VerificationRequested" }

type VerifierKeyRegistered struct {
	Key crypto.VerifierKey
}

func (VerifierKeyRegistered) EventName() string { return "VerifierKeyRegistered" }

type ResultAccepted struct {
	Report attestation.Report
}

func (ResultAccepted) EventName() string { return "ResultAccepted" }

type EntriesExpired struct {
	Height block.Height
	Count  int
}

func (EntriesExpired) EventName() string { return "EntriesExpired" }

// EvidenceID returns the CIDv1 (raw codec, sha2-256 multihash) of evidence.
func EvidenceID(evidence []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(evidence, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
