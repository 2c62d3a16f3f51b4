// Package keystore holds the pre-provisioned signing identities of a node.
package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/eigerco/attestd/internal/crypto"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
)

var ErrKeyMismatch = errors.New("private key does not match public key")

// KeyInfo is one entry of a key file.
type KeyInfo struct {
	Ed25519Pub string `json:"ed25519_public_key"`
	Ed25519Prv string `json:"ed25519_private_key"`
}

type Key struct {
	Public  crypto.VerifierKey
	Private ed25519.PrivateKey
}

// KeyStore is safe for concurrent use.
type KeyStore struct {
	mu   sync.RWMutex
	keys []Key
}

func New(keys ...Key) *KeyStore {
	return &KeyStore{keys: keys}
}

// Load reads a JSON array of KeyInfo from filename.
func Load(filename string) (*KeyStore, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	var infos []KeyInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %w", err)
	}
	return FromInfos(infos)
}

// FromInfos builds a key store from key file entries.
func FromInfos(infos []KeyInfo) (*KeyStore, error) {
	ks := New()
	for i, info := range infos {
		k, err := info.key()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		ks.keys = append(ks.keys, k)
	}
	return ks, nil
}

func (info KeyInfo) key() (Key, error) {
	pub, err := crypto.ParseVerifierKey(info.Ed25519Pub)
	if err != nil {
		return Key{}, fmt.Errorf("public key: %w", err)
	}
	prv, err := hex.DecodeString(info.Ed25519Prv)
	if err != nil {
		return Key{}, fmt.Errorf("private key: %w", err)
	}
	if len(prv) != ed25519.PrivateKeySize {
		return Key{}, fmt.Errorf("private key: invalid length %d", len(prv))
	}
	private := ed25519.PrivateKey(prv)
	if !private.Public().(ed25519.PublicKey).Equal(pub.PublicKey()) {
		return Key{}, ErrKeyMismatch
	}
	return Key{Public: pub, Private: private}, nil
}

// Generate creates n fresh keys and returns them in key file form.
func Generate(n int) ([]KeyInfo, error) {
	infos := make([]KeyInfo, 0, n)
	for range n {
		pub, prv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		infos = append(infos, KeyInfo{
			Ed25519Pub: hex.EncodeToString(pub),
			Ed25519Prv: hex.EncodeToString(prv),
		})
	}
	return infos, nil
}

// Save writes infos to filename as indented JSON readable by Load.
func Save(filename string, infos []KeyInfo) error {
	data, err := json.MarshalIndent(infos, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}

// Any returns the first available key.
func (ks *KeyStore) Any() (Key, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if len(ks.keys) == 0 {
		return Key{}, false
	}
	return ks.keys[0], true
}

func (ks *KeyStore) Add(k Key) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = append(ks.keys, k)
}

func (ks *KeyStore) PublicKeys() []crypto.VerifierKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	keys := make([]crypto.VerifierKey, len(ks.keys))
	for i, k := range ks.keys {
		keys[i] = k.Public
	}
	return keys
}
