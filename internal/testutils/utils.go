package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
)

func RandomHash(t *testing.T) crypto.Hash {
	var h crypto.Hash
	_, err := rand.Read(h[:])
	require.NoError(t, err)
	return h
}

func RandomAccountId(t *testing.T) crypto.AccountId {
	var a crypto.AccountId
	_, err := rand.Read(a[:])
	require.NoError(t, err)
	return a
}

// RandomVerifier returns a fresh verifier identity.
func RandomVerifier(t *testing.T) (crypto.VerifierKey, ed25519.PrivateKey) {
	pub, prv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k, err := crypto.VerifierKeyFrom(pub)
	require.NoError(t, err)
	return k, prv
}

// RandomSignedAccount returns an account together with the key that controls it.
func RandomSignedAccount(t *testing.T) (crypto.AccountId, ed25519.PrivateKey) {
	k, prv := RandomVerifier(t)
	return crypto.AccountId(k), prv
}
