// Package interfaces defines the core types and capability interfaces of the
// DICE Layer-0 engine, separating the contracts from their implementations.
//
// # Capability Interfaces
//
// DigestEngine: incremental hashing over streamed byte segments, keyed or
// unkeyed, for a fixed set of hash algorithm identifiers.
//
// KeyEngine: deterministic key-pair derivation from a fixed-length seed,
// signing, and public-key decoding for one asymmetric algorithm.
//
// CertificateEncoder: turns ingredient records into a DER encoded DeviceID
// CSR and AliasKey certificate.
//
// # Data Types
//
//   - HashAlg: hash algorithm identifier with stable numeric values
//   - KeyPair: raw public and private key encodings
//   - Name: subject/issuer name fields carried by ingredient records
//   - DeviceIDCSRIngredients, AliasKeyCRTIngredients: certificate templates
//   - Layer0Output: the five outputs of one Layer-0 derivation
//
// # Error Types
//
// All failures are reported with the sentinel errors in errors.go and are
// matched with errors.Is. Length failures share the ErrInvalidInputLength
// parent:
//
//	if errors.Is(err, interfaces.ErrInvalidInputLength) {
//	    // cdi, fwid, label or seed had the wrong size
//	}
package interfaces
