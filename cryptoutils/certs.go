package cryptoutils

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// PublicKeyPEM encodes a public key as a PKIX "PUBLIC KEY" block.
func PublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a PKIX "PUBLIC KEY" block.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublicKey {
		return nil, errors.New("failed to decode public key PEM block")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

// PrivateKeyPEM encodes a private key as a PKCS#8 "PRIVATE KEY" block.
// The intermediate DER buffer is zeroized before returning.
func PrivateKeyPEM(priv crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	defer Zeroize(der)
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der}), nil
}

// DecodeDER accepts either a PEM block of the given type or raw DER and
// returns the DER bytes.
func DecodeDER(data []byte, pemType string) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		return data, nil
	}
	block, _ := pem.Decode(trimmed)
	if block == nil || block.Type != pemType {
		return nil, fmt.Errorf("failed to decode %s PEM block", pemType)
	}
	return block.Bytes, nil
}

// DecodeCSRDER is DecodeDER for certificate requests.
func DecodeCSRDER(data []byte) ([]byte, error) {
	return DecodeDER(data, pemTypeCSR)
}

// DecodeCertDER is DecodeDER for certificates.
func DecodeCertDER(data []byte) ([]byte, error) {
	return DecodeDER(data, pemTypeCert)
}

// Fingerprint is a short, log-safe identifier of a public key: the first
// eight bytes of the SHA-256 of its raw encoding, hex encoded.
func Fingerprint(rawPublicKey []byte) string {
	sum := sha256.Sum256(rawPublicKey)
	return hex.EncodeToString(sum[:8])
}


// RawPublicKey returns the encoding the key engines use: the 32 key bytes
// for Ed25519, the uncompressed point for ECDSA.
func RawPublicKey(pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case ed25519.PublicKey:
		return bytes.Clone(k), nil
	case *ecdsa.PublicKey:
		ek, err := k.ECDH()
		if err != nil {
			return nil, err
		}
		return ek.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}

// FingerprintKey is Fingerprint over RawPublicKey(pub), or "" for key types
// RawPublicKey does not know.
func FingerprintKey(pub crypto.PublicKey) string {
	raw, err := RawPublicKey(pub)
	if err != nil {
		return ""
	}
	return Fingerprint(raw)
}
