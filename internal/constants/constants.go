package constants

import "time"

// Constants that are the same for all chain configurations

const (
	// UnsignedLongevity is the number of blocks a pooled candidate result stays
	// valid before it has to be re-validated or dropped.
	UnsignedLongevity = 10

	// OracleTimeout is the hard deadline for one external verification call.
	OracleTimeout = 30 * time.Second

	// DefaultOracleURL is the fixed local address of the attestation oracle.
	DefaultOracleURL = "http://localhost:17777/entryNetwork"

	// SignatureContextReport prefixes every signed verification report.
	SignatureContextReport = "attestd_report"

	// SignatureContextEvidence prefixes the evidence an account signs when it
	// submits through the HTTP entry point.
	SignatureContextEvidence = "attestd_evidence"

	// MaxEvidenceSize bounds the evidence accepted by the submission entry point.
	MaxEvidenceSize = 64 * 1024

	// MaxMessageSize bounds the verdict payload carried in a report.
	MaxMessageSize = 16 * 1024
)
