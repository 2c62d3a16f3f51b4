package cert

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
)

func TestGenerateAndValidate(t *testing.T) {
	pub, prv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	c, err := Generate(prv, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, c.Leaf)
	assert.Len(t, c.Leaf.DNSNames[0], 53)

	got, err := Validate(c.Leaf)
	require.NoError(t, err)
	assert.True(t, pub.Equal(got))
}

func TestValidateRejectsForeignDNSName(t *testing.T) {
	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub, prv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:       big.NewInt(1),
		Subject:            pkix.Name{CommonName: "x"},
		DNSNames:           []string{EncodePubKeyToDNS(other)},
		NotBefore:          time.Now().Add(-time.Minute),
		NotAfter:           time.Now().Add(time.Hour),
		SignatureAlgorithm: x509.PureEd25519,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, prv)
	require.NoError(t, err)
	c, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	_, err = Validate(c)
	assert.ErrorIs(t, err, ErrDNSName)
}

func TestValidateRejectsExpired(t *testing.T) {
	_, prv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	c, err := Generate(prv, -time.Hour)
	require.NoError(t, err)

	_, err = Validate(c.Leaf)
	assert.ErrorIs(t, err, ErrOutsideValidity)
}
