package interfaces

import (
	"crypto"
	"hash"
)

// DigestEngine computes digests over streamed byte segments.
// Implementations must keep no hash state between calls.
type DigestEngine interface {
	// DigestLength returns the output size of alg, or 0 if alg is unknown.
	DigestLength(alg HashAlg) uint32

	// Digest hashes the segments in order as if they were concatenated.
	Digest(alg HashAlg, segments ...[]byte) ([]byte, error)

	// MAC computes a keyed digest over the segments.
	MAC(alg HashAlg, key []byte, segments ...[]byte) ([]byte, error)

	// New returns a fresh incremental hash state for alg.
	New(alg HashAlg) (hash.Hash, error)
}

// Signer is a crypto.Signer whose key material can be overwritten.
type Signer interface {
	crypto.Signer
	Wipe()
}

// KeyEngine derives and uses key pairs of one asymmetric algorithm.
type KeyEngine interface {
	// Name is the short algorithm name, e.g. "ed25519".
	Name() string

	// SeedLength is the exact seed size DeriveKeyPair accepts.
	SeedLength() int

	// DeriveKeyPair deterministically expands seed into a key pair.
	// Fails with ErrInvalidSeedLength on a size mismatch.
	DeriveKeyPair(seed []byte) (*KeyPair, error)

	// Sign signs message with privateKey. Fails with ErrSigningFailure on
	// malformed key material.
	Sign(privateKey, message []byte) ([]byte, error)

	// Signer wraps privateKey for use with crypto/x509. Wiping the signer
	// overwrites any key material it holds, including privateKey itself
	// when the signer aliases it.
	Signer(privateKey []byte) (Signer, error)

	// PublicKey decodes a raw public key produced by DeriveKeyPair.
	PublicKey(publicKey []byte) (crypto.PublicKey, error)
}

// CertificateEncoder produces DER encodings of the Layer-0 certificates.
type CertificateEncoder interface {
	// EncodeDeviceIDCSR builds the DeviceID CSR, self-signed by signer.
	EncodeDeviceIDCSR(ingredients DeviceIDCSRIngredients, signer crypto.Signer) ([]byte, error)

	// EncodeAliasKeyCRT builds the AliasKey certificate issued by signer.
	EncodeAliasKeyCRT(ingredients AliasKeyCRTIngredients, signer crypto.Signer) ([]byte, error)
}
