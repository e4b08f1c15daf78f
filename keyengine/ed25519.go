package keyengine

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/interfaces"
)

// Ed25519 derives Ed25519 key pairs from a 32-byte seed as in RFC 8032.
// Public keys are the 32-byte encoding, private keys the 64-byte seed||pub
// form used by crypto/ed25519.
type Ed25519 struct{}

var _ interfaces.KeyEngine = Ed25519{}

func (Ed25519) Name() string { return NameEd25519 }

func (Ed25519) SeedLength() int { return ed25519.SeedSize }

// DeriveKeyPair expands seed with ed25519.NewKeyFromSeed.
func (Ed25519) DeriveKeyPair(seed []byte) (*interfaces.KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 needs %d bytes, got %d", interfaces.ErrInvalidSeedLength, ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.SeedSize:])

	return &interfaces.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

func (Ed25519) Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key of %d bytes", interfaces.ErrSigningFailure, len(privateKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

// Signer aliases privateKey; wiping the signer wipes the caller's buffer.
func (Ed25519) Signer(privateKey []byte) (interfaces.Signer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key of %d bytes", interfaces.ErrSigningFailure, len(privateKey))
	}
	return &ed25519Signer{key: ed25519.PrivateKey(privateKey)}, nil
}

func (Ed25519) PublicKey(publicKey []byte) (crypto.PublicKey, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key of %d bytes", interfaces.ErrInvalidInputLength, len(publicKey))
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, publicKey)
	return pub, nil
}

// PrivateKey returns a copy of privateKey as an ed25519.PrivateKey.
func (Ed25519) PrivateKey(privateKey []byte) (crypto.PrivateKey, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key of %d bytes", interfaces.ErrInvalidInputLength, len(privateKey))
	}
	return ed25519.PrivateKey(bytes.Clone(privateKey)), nil
}

type ed25519Signer struct {
	key ed25519.PrivateKey
}

func (s *ed25519Signer) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *ed25519Signer) Sign(rand io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	if cryptoutils.IsZero(s.key) {
		return nil, fmt.Errorf("%w: signer was wiped", interfaces.ErrSigningFailure)
	}
	sig, err := s.key.Sign(rand, message, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
	}
	return sig, nil
}

func (s *ed25519Signer) Wipe() {
	cryptoutils.Zeroize(s.key)
}
