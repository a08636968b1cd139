package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// SeedSize is the seed length for every supported scheme.
const SeedSize = 32

// Ed25519 signs sha256(msg) with an ed25519 key.
type Ed25519 struct {
	priv ed25519.PrivateKey
	id   Identity
}

func NewEd25519(seed []byte) (*Ed25519, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519{priv: priv, id: NewIdentity(SchemeEd25519, pub)}, nil
}

func (w *Ed25519) Identity() Identity { return w.id }

func (w *Ed25519) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return ed25519.Sign(w.priv, digest[:]), nil
}

// Dilithium3 signs sha3-256(msg) with a post-quantum dilithium mode3 key.
type Dilithium3 struct {
	priv *mode3.PrivateKey
	id   Identity
}

func NewDilithium3(seed []byte) (*Dilithium3, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("wallet: dilithium3 seed must be %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3{priv: priv, id: NewIdentity(SchemeDilithium3, pub.Bytes())}, nil
}

func (w *Dilithium3) Identity() Identity { return w.id }

func (w *Dilithium3) Sign(msg []byte) ([]byte, error) {
	digest := sha3.Sum256(msg)
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(w.priv, digest[:], sig)
	return sig, nil
}

// FromSeed builds a wallet for scheme from a 32 byte seed.
func FromSeed(scheme string, seed []byte) (Wallet, error) {
	switch scheme {
	case SchemeEd25519, "":
		return NewEd25519(seed)
	case SchemeDilithium3:
		return NewDilithium3(seed)
	default:
		return nil, fmt.Errorf("wallet: unknown scheme %q", scheme)
	}
}
