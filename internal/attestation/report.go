// Package attestation defines verification reports and the signed candidate
// result messages that carry them from a worker to admission.
package attestation

import (
	"errors"
	"fmt"

	"github.com/eigerco/attestd/internal/block"
	"github.com/eigerco/attestd/internal/constants"
	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/pkg/codec"
)

var ErrMessageTooLarge = errors.New("report message too large")

// Report is a verifier's verdict on the queue entry (ScheduledHeight, Submitter).
type Report struct {
	ScheduledHeight block.Height
	Message         []byte
	Submitter       crypto.AccountId
	Verifier        crypto.VerifierKey
}

// CheckSize rejects reports whose message cannot be decoded back.
func (r Report) CheckSize() error {
	if len(r.Message) > constants.MaxMessageSize {
		return ErrMessageTooLarge
	}
	return nil
}

func (r Report) Encode() []byte {
	return r.encodeTo(codec.NewEncoder()).Result()
}

func (r Report) encodeTo(e *codec.Encoder) *codec.Encoder {
	return e.Uint64(uint64(r.ScheduledHeight)).
		Bytes(r.Message).
		Fixed(r.Submitter[:]).
		Fixed(r.Verifier[:])
}

func DecodeReport(b []byte) (Report, error) {
	d := codec.NewDecoder(b)
	r, err := decodeReport(d)
	if err != nil {
		return Report{}, err
	}
	if err := d.Finish(); err != nil {
		return Report{}, err
	}
	return r, nil
}

func decodeReport(d *codec.Decoder) (Report, error) {
	var r Report
	h, err := d.Uint64()
	if err != nil {
		return r, fmt.Errorf("decode scheduled height: %w", err)
	}
	r.ScheduledHeight = block.Height(h)
	if r.Message, err = d.Bytes(); err != nil {
		return r, fmt.Errorf("decode message: %w", err)
	}
	if err := r.CheckSize(); err != nil {
		return r, err
	}
	if err := d.Fixed(r.Submitter[:]); err != nil {
		return r, fmt.Errorf("decode submitter: %w", err)
	}
	if err := d.Fixed(r.Verifier[:]); err != nil {
		return r, fmt.Errorf("decode verifier: %w", err)
	}
	return r, nil
}

// SigningPayload is the byte string a verifier signs: context ++ encoding.
func (r Report) SigningPayload() []byte {
	return append([]byte(constants.SignatureContextReport), r.Encode()...)
}

// CandidateResult is the self-authenticating, fee-less message that proposes
// a report for admission.
type CandidateResult struct {
	Report    Report
	Signature crypto.Ed25519Signature
}

// Sign builds a candidate result for r. The verifier field must match key.
func Sign(r Report, key ed25519.PrivateKey) (CandidateResult, error) {
	if err := r.CheckSize(); err != nil {
		return CandidateResult{}, err
	}
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return CandidateResult{}, errors.New("unexpected public key type")
	}
	if !pub.Equal(r.Verifier.PublicKey()) {
		return CandidateResult{}, errors.New("report verifier does not match signing key")
	}
	var sig crypto.Ed25519Signature
	copy(sig[:], ed25519.Sign(key, r.SigningPayload()))
	return CandidateResult{Report: r, Signature: sig}, nil
}

// VerifySignature checks the signature against the verifier key named in the report.
func (c CandidateResult) VerifySignature() bool {
	return ed25519.Verify(c.Report.Verifier.PublicKey(), c.Report.SigningPayload(), c.Signature[:])
}

func (c CandidateResult) Encode() []byte {
	return c.Report.encodeTo(codec.NewEncoder()).Fixed(c.Signature[:]).Result()
}

// Hash identifies a candidate result in the pool.
func (c CandidateResult) Hash() crypto.Hash {
	return crypto.HashData(c.Encode())
}

func DecodeCandidateResult(b []byte) (CandidateResult, error) {
	d := codec.NewDecoder(b)
	r, err := decodeReport(d)
	if err != nil {
		return CandidateResult{}, err
	}
	var c CandidateResult
	c.Report = r
	if err := d.Fixed(c.Signature[:]); err != nil {
		return CandidateResult{}, fmt.Errorf("decode signature: %w", err)
	}
	if err := d.Finish(); err != nil {
		return CandidateResult{}, err
	}
	return c, nil
}
