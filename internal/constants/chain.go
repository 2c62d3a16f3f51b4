//go:build !tiny

package constants

// Chain specific constants by configuration, eg tiny

const (
	// VerifyDelay is the height offset between submission and scheduled verification.
	VerifyDelay = 5

	// EvidenceLifetime is the number of blocks after its scheduled height during
	// which a queue entry can still be resolved.
	EvidenceLifetime = 20

	// UnsignedPriority is the pool priority of candidate results.
	UnsignedPriority uint64 = 1 << 20

	// MaxResultsPerAccount caps the stored verification results of one account.
	MaxResultsPerAccount = 64
)
