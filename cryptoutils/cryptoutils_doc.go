// Package cryptoutils provides the small cryptographic helpers shared by the
// Layer-0 packages and binaries.
//
// # Zeroization
//
// Zeroize, ZeroizeInt and the Secret guard overwrite transient key material.
// A Secret is created right after a seed is computed and its Wipe deferred,
// so the buffer is cleared on early returns and panics as well:
//
//	seed := cryptoutils.NewSecret(digest)
//	defer seed.Wipe()
//
// Go can not pin memory or prevent the runtime from copying a slice it
// has moved, so zeroization covers the buffers this module owns and nothing
// more.
//
// # Encodings
//
// DeviceIDCSR and AliasKeyCert wrap PEM encoded Layer-0 outputs.
// ParseDeviceIDCSR and ParseAliasKeyCert accept either PEM or DER input and
// reject anything that does not decode. Fingerprint and FingerprintKey produce
// short, log-safe public key identifiers.
package cryptoutils
