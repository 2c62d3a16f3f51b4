// Package cert issues and checks the self-signed ed25519 certificates that
// identify nodes on the peer network.
package cert

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
)

// DNSNamePrefix is prepended to the encoded public key in the certificate DNS name.
const DNSNamePrefix = "a"

// DefaultValidity of a generated node certificate.
const DefaultValidity = 24 * time.Hour * 365

var (
	ErrNotEd25519      = errors.New("certificate key is not ed25519")
	ErrDNSName         = errors.New("certificate dns name does not encode its key")
	ErrOutsideValidity = errors.New("certificate outside its validity period")
)

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// EncodePubKeyToDNS returns "a" + base32(pub) with a lowercase alphabet.
func EncodePubKeyToDNS(pub ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pub)
}

// Generate creates a self-signed certificate for the node key, usable for
// both ends of a connection.
func Generate(prv ed25519.PrivateKey, validity time.Duration) (*tls.Certificate, error) {
	pub, ok := prv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	dnsName := EncodePubKeyToDNS(pub)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: dnsName},
		DNSNames:              []string{dnsName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, prv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: prv, Leaf: leaf}, nil
}

// Validate checks that c is an ed25519 certificate whose only DNS name
// encodes its own key, and that it is currently valid. It returns the key.
func Validate(c *x509.Certificate) (ed25519.PublicKey, error) {
	if c.SignatureAlgorithm != x509.PureEd25519 {
		return nil, ErrNotEd25519
	}
	pub, ok := c.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	if len(c.DNSNames) != 1 || !strings.HasPrefix(c.DNSNames[0], DNSNamePrefix) ||
		c.DNSNames[0] != EncodePubKeyToDNS(pub) {
		return nil, ErrDNSName
	}
	now := time.Now()
	if now.Before(c.NotBefore) || now.After(c.NotAfter) {
		return nil, ErrOutsideValidity
	}
	return pub, nil
}
