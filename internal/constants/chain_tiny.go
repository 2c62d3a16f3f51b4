//go:build tiny

package constants

const (
	VerifyDelay                 = 1
	EvidenceLifetime            = 2
	UnsignedPriority     uint64 = 1 << 20
	MaxResultsPerAccount        = 8
)
