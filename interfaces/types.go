package interfaces

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// HashAlg identifies a hash algorithm. Values follow the numbering of the
// reference engine's hash definitions; SHA1 (4) and MD5 (5) are not offered.
type HashAlg uint8

const (
	SHA2_224 HashAlg = 0
	SHA2_256 HashAlg = 1
	SHA2_384 HashAlg = 2
	SHA2_512 HashAlg = 3
	Blake2S  HashAlg = 6
	Blake2B  HashAlg = 7
	SHA3_256 HashAlg = 8
	SHA3_224 HashAlg = 9
	SHA3_384 HashAlg = 10
	SHA3_512 HashAlg = 11
)

var hashAlgNames = map[HashAlg]string{
	SHA2_224: "sha2-224",
	SHA2_256: "sha2-256",
	SHA2_384: "sha2-384",
	SHA2_512: "sha2-512",
	Blake2S:  "blake2s",
	Blake2B:  "blake2b",
	SHA3_256: "sha3-256",
	SHA3_224: "sha3-224",
	SHA3_384: "sha3-384",
	SHA3_512: "sha3-512",
}

// HashAlgs returns every defined hash algorithm in identifier order.
func HashAlgs() []HashAlg {
	return []HashAlg{SHA2_224, SHA2_256, SHA2_384, SHA2_512, Blake2S, Blake2B, SHA3_256, SHA3_224, SHA3_384, SHA3_512}
}

func (a HashAlg) String() string {
	if name, ok := hashAlgNames[a]; ok {
		return name
	}
	return fmt.Sprintf("hashalg(%d)", uint8(a))
}

// Valid reports whether a is a defined identifier.
func (a HashAlg) Valid() bool {
	_, ok := hashAlgNames[a]
	return ok
}

// ParseHashAlg resolves names like "sha2-256", "SHA256" or "sha3_384".
func ParseHashAlg(name string) (HashAlg, error) {
	clean := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	for alg, n := range hashAlgNames {
		if clean == n || clean == strings.ReplaceAll(n, "2-", "") || clean == strings.ReplaceAll(n, "-", "") {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%w: hash %q", ErrUnsupportedAlgorithm, name)
}

// KeyPair holds the raw encodings produced by a KeyEngine.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Wipe overwrites the private key in place.
func (kp *KeyPair) Wipe() {
	if kp == nil {
		return
	}
	clear(kp.PrivateKey)
}

// Name is the subset of an X.509 distinguished name used by DICE L0.
type Name struct {
	CommonName   string `json:"common_name,omitempty" yaml:"common_name"`
	Organization string `json:"organization,omitempty" yaml:"organization"`
	Country      string `json:"country,omitempty" yaml:"country"`
}

// DeviceIDCSRIngredients is the caller's template for the DeviceID CSR.
// PublicKey is filled during derivation.
type DeviceIDCSRIngredients struct {
	// Version is the PKCS#10 version; only 0 is defined.
	Version  int
	Subject  Name
	KeyUsage x509.KeyUsage

	PublicKey crypto.PublicKey
}

// AliasKeyCRTIngredients is the caller's template for the AliasKey
// certificate. FWIDHashAlg, FWID, DeviceIDPublicKey and PublicKey are filled
// during derivation; every other field is passed through untouched.
type AliasKeyCRTIngredients struct {
	// Version is the X.509 version; 0 selects the default (v3).
	Version int
	// SerialNumber is a big-endian positive integer. When empty the encoder
	// derives one from the AliasKey public key.
	SerialNumber []byte
	Issuer       Name
	Subject      Name
	NotBefore    time.Time
	NotAfter     time.Time
	L0Version    int
	KeyUsage     x509.KeyUsage
	ExtKeyUsage  []x509.ExtKeyUsage

	// TCB info fields, optional.
	Vendor string
	Model  string
	SVN    int

	FWIDHashAlg       HashAlg
	FWID              []byte
	DeviceIDPublicKey crypto.PublicKey
	PublicKey         crypto.PublicKey
}

// Layer0Output carries everything a successful derivation returns.
// AliasKeyPrivateKey belongs to the caller, who should Wipe it when done.
type Layer0Output struct {
	DeviceIDPublicKey  []byte
	AliasKeyPublicKey  []byte
	AliasKeyPrivateKey []byte
	// DeviceIDCSR and AliasKeyCRT are DER encoded.
	DeviceIDCSR []byte
	AliasKeyCRT []byte
}

// Wipe overwrites the alias private key.
func (o *Layer0Output) Wipe() {
	if o == nil {
		return
	}
	clear(o.AliasKeyPrivateKey)
}
