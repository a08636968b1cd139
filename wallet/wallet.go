package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

const (
	SchemeEd25519    = "ed25519"
	SchemeDilithium3 = "dilithium3"
)

var (
	// ErrRejected is returned by Sign when the holder declines to sign.
	ErrRejected = errors.New("wallet: signature request rejected")

	ErrBadIdentity  = errors.New("wallet: malformed identity")
	ErrBadSignature = errors.New("wallet: signature does not verify")
)

// Identity is a public, opaque handle for a signer.
type Identity string

// Wallet is the host-provided signing capability.
type Wallet interface {
	Identity() Identity
	// Sign signs msg. Implementations that involve a person may return
	// ErrRejected.
	Sign(msg []byte) ([]byte, error)
}

// NewIdentity formats a public key for scheme.
func NewIdentity(scheme string, pub []byte) Identity {
	return Identity(scheme + ":" + base64.StdEncoding.EncodeToString(pub))
}

// Parse splits id into its scheme and raw public key.
func (id Identity) Parse() (scheme string, pub []byte, err error) {
	scheme, enc, ok := strings.Cut(string(id), ":")
	if !ok || scheme == "" || enc == "" {
		return "", nil, ErrBadIdentity
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadIdentity, err)
	}
	switch scheme {
	case SchemeEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("%w: ed25519 key is %d bytes", ErrBadIdentity, len(pub))
		}
	case SchemeDilithium3:
		if len(pub) != mode3.PublicKeySize {
			return "", nil, fmt.Errorf("%w: dilithium3 key is %d bytes", ErrBadIdentity, len(pub))
		}
	default:
		return "", nil, fmt.Errorf("%w: unknown scheme %q", ErrBadIdentity, scheme)
	}
	return scheme, pub, nil
}

// Validate reports whether id is well formed.
func (id Identity) Validate() error {
	_, _, err := id.Parse()
	return err
}

// Short is a display form: scheme plus the first characters of the key.
func (id Identity) Short() string {
	s := string(id)
	scheme, enc, ok := strings.Cut(s, ":")
	if !ok || len(enc) <= 8 {
		return s
	}
	return scheme + ":" + enc[:8] + "…"
}

func (id Identity) String() string { return string(id) }

// Verify checks that sig is id's signature over msg.
func Verify(id Identity, msg, sig []byte) error {
	scheme, pub, err := id.Parse()
	if err != nil {
		return err
	}
	switch scheme {
	case SchemeEd25519:
		digest := sha256.Sum256(msg)
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return ErrBadSignature
		}
	case SchemeDilithium3:
		var buf [mode3.PublicKeySize]byte
		copy(buf[:], pub)
		var pk mode3.PublicKey
		pk.Unpack(&buf)
		digest := sha3.Sum256(msg)
		if !mode3.Verify(&pk, digest[:], sig) {
			return ErrBadSignature
		}
	}
	return nil
}
