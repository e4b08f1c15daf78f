package keyengine

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"math/big"

	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/interfaces"
	"golang.org/x/crypto/hkdf"
)

// hkdf info for scalar expansion. Changing it changes every derived ECDSA key.
const ecdsaDerivationInfo = "DICE-L0 ECDSA key derivation"

// maxCandidates bounds the rejection sampling of scalars; a candidate is
// rejected with probability below 2^-32, so running out means a broken KDF.
const maxCandidates = 16

// ECDSA derives ECDSA key pairs on one NIST curve. The seed feeds HKDF with
// the curve's hash; successive outputs of the curve's scalar size are tried
// until one is a valid private scalar.
//
// Public keys are uncompressed SEC1 points, private keys the fixed-size
// big-endian scalar.
type ECDSA struct {
	name    string
	curve   elliptic.Curve
	ecdh    ecdh.Curve
	newHash func() hash.Hash
	size    int
}

var _ interfaces.KeyEngine = (*ECDSA)(nil)

// P256 returns the ECDSA engine for NIST P-256 with SHA-256 (32-byte seeds).
func P256() *ECDSA {
	return &ECDSA{name: NameP256, curve: elliptic.P256(), ecdh: ecdh.P256(), newHash: sha256.New, size: 32}
}

// P384 returns the ECDSA engine for NIST P-384 with SHA-384 (48-byte seeds).
func P384() *ECDSA {
	return &ECDSA{name: NameP384, curve: elliptic.P384(), ecdh: ecdh.P384(), newHash: sha512.New384, size: 48}
}

func (e *ECDSA) Name() string { return e.name }

func (e *ECDSA) SeedLength() int { return e.size }

func (e *ECDSA) DeriveKeyPair(seed []byte) (*interfaces.KeyPair, error) {
	if len(seed) != e.size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", interfaces.ErrInvalidSeedLength, e.name, e.size, len(seed))
	}

	kdf := hkdf.New(e.newHash, seed, nil, []byte(ecdsaDerivationInfo))
	scalar := make([]byte, e.size)
	for i := 0; i < maxCandidates; i++ {
		if _, err := io.ReadFull(kdf, scalar); err != nil {
			cryptoutils.Zeroize(scalar)
			return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrKeyDerivationFailure, e.name, err)
		}

		priv, err := e.ecdh.NewPrivateKey(scalar)
		if err != nil {
			// zero or not below the group order
			continue
		}

		return &interfaces.KeyPair{PublicKey: priv.PublicKey().Bytes(), PrivateKey: scalar}, nil
	}

	cryptoutils.Zeroize(scalar)
	return nil, fmt.Errorf("%w: %s: no valid scalar after %d candidates", interfaces.ErrKeyDerivationFailure, e.name, maxCandidates)
}

func (e *ECDSA) Sign(privateKey, message []byte) ([]byte, error) {
	key, err := e.privateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer cryptoutils.ZeroizeInt(key.D)

	h := e.newHash()
	h.Write(message)
	sig, err := ecdsa.SignASN1(rand.Reader, key, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
	}
	return sig, nil
}

// Signer copies the scalar into an *ecdsa.PrivateKey; Wipe clears that copy.
func (e *ECDSA) Signer(privateKey []byte) (interfaces.Signer, error) {
	key, err := e.privateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &ecdsaSigner{key: key}, nil
}

func (e *ECDSA) PublicKey(publicKey []byte) (crypto.PublicKey, error) {
	pub, err := e.ecdh.NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s public key: %w", interfaces.ErrInvalidInputLength, e.name, err)
	}
	return e.toECDSA(pub.Bytes()), nil
}

// PrivateKey converts a raw scalar for export, e.g. as PKCS#8. The result
// holds its own copy of the scalar.
func (e *ECDSA) PrivateKey(privateKey []byte) (crypto.PrivateKey, error) {
	return e.privateKey(privateKey)
}

func (e *ECDSA) privateKey(scalar []byte) (*ecdsa.PrivateKey, error) {
	if len(scalar) != e.size {
		return nil, fmt.Errorf("%w: %s private key of %d bytes", interfaces.ErrSigningFailure, e.name, len(scalar))
	}
	priv, err := e.ecdh.NewPrivateKey(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: %s private key: %w", interfaces.ErrSigningFailure, e.name, err)
	}

	return &ecdsa.PrivateKey{
		PublicKey: *e.toECDSA(priv.PublicKey().Bytes()),
		D:         new(big.Int).SetBytes(scalar),
	}, nil
}

// toECDSA splits an uncompressed point 0x04||X||Y.
func (e *ECDSA) toECDSA(point []byte) *ecdsa.PublicKey {
	return &ecdsa.PublicKey{
		Curve: e.curve,
		X:     new(big.Int).SetBytes(point[1 : 1+e.size]),
		Y:     new(big.Int).SetBytes(point[1+e.size:]),
	}
}

type ecdsaSigner struct {
	key *ecdsa.PrivateKey
}

func (s *ecdsaSigner) Public() crypto.PublicKey {
	return &s.key.PublicKey
}

func (s *ecdsaSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if s.key.D.Sign() == 0 {
		return nil, fmt.Errorf("%w: signer was wiped", interfaces.ErrSigningFailure)
	}
	sig, err := s.key.Sign(rand, digest, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
	}
	return sig, nil
}

func (s *ecdsaSigner) Wipe() {
	cryptoutils.ZeroizeInt(s.key.D)
}
