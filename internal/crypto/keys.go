package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
)

// AccountId identifies a ledger participant. Accounts are ed25519 public keys.
type AccountId [AccountIdSize]byte

// VerifierKey is the public key of an identity allowed to author verification reports.
type VerifierKey [Ed25519PublicSize]byte

type Ed25519Signature [Ed25519SignatureSize]byte

func (a AccountId) String() string { return hex.EncodeToString(a[:]) }

func (a AccountId) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AccountId) UnmarshalText(b []byte) error { return decodeFixedHex(string(b), a[:]) }

// PublicKey returns the account as an ed25519 public key.
func (a AccountId) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(a[:]) }

func (k VerifierKey) String() string { return hex.EncodeToString(k[:]) }

func (k VerifierKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *VerifierKey) UnmarshalText(b []byte) error { return decodeFixedHex(string(b), k[:]) }

func (k VerifierKey) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(k[:]) }

func (s Ed25519Signature) String() string { return hex.EncodeToString(s[:]) }

func (s Ed25519Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Ed25519Signature) UnmarshalText(b []byte) error { return decodeFixedHex(string(b), s[:]) }

// VerifierKeyFrom converts an ed25519 public key, failing on a wrong length.
func VerifierKeyFrom(pub ed25519.PublicKey) (VerifierKey, error) {
	var k VerifierKey
	if len(pub) != len(k) {
		return k, fmt.Errorf("invalid public key length %d", len(pub))
	}
	copy(k[:], pub)
	return k, nil
}

// ParseAccountId decodes a hex account id, with or without 0x prefix.
func ParseAccountId(s string) (AccountId, error) {
	var a AccountId
	return a, decodeFixedHex(s, a[:])
}

func ParseVerifierKey(s string) (VerifierKey, error) {
	var k VerifierKey
	return k, decodeFixedHex(s, k[:])
}

func ParseSignature(s string) (Ed25519Signature, error) {
	var sig Ed25519Signature
	return sig, decodeFixedHex(s, sig[:])
}

func decodeFixedHex(s string, dst []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
