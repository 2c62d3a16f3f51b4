package protocol

import (
	"fmt"
	"strings"
)

const (
	protocolPrefix = "attestd"

	currentVersion = "0"

	// Chain hash length in nibbles
	chainHashLength = 8
)

// ProtocolID is an ALPN protocol identifier: attestd/<version>/<chain-hash>
type ProtocolID struct {
	Version   string
	ChainHash string
}

func NewProtocolID(chainHash string) ProtocolID {
	return ProtocolID{Version: currentVersion, ChainHash: chainHash}
}

func (p ProtocolID) String() string {
	return strings.Join([]string{protocolPrefix, p.Version, p.ChainHash}, "/")
}

// ParseProtocolID parses and validates an ALPN protocol string.
func ParseProtocolID(protocol string) (ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) != 3 {
		return ProtocolID{}, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return ProtocolID{}, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return ProtocolID{}, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}
	chainHash := parts[2]
	if len(chainHash) != chainHashLength {
		return ProtocolID{}, fmt.Errorf("invalid chain hash length: %s", chainHash)
	}
	for _, c := range chainHash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ProtocolID{}, fmt.Errorf("invalid chain hash character: %c", c)
		}
	}
	return ProtocolID{Version: parts[1], ChainHash: chainHash}, nil
}

// ValidateNegotiated checks that a negotiated protocol belongs to chainHash.
func ValidateNegotiated(protocol, chainHash string) error {
	id, err := ParseProtocolID(protocol)
	if err != nil {
		return err
	}
	if id.ChainHash != chainHash {
		return fmt.Errorf("protocol for chain %s, expected %s", id.ChainHash, chainHash)
	}
	return nil
}
