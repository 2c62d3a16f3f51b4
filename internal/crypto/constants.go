package crypto

const (
	HashSize             = 32
	AccountIdSize        = 32
	Ed25519PublicSize    = 32
	Ed25519PrivateSize   = 64
	Ed25519SignatureSize = 64
)
