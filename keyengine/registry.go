// Package keyengine implements deterministic asymmetric key engines for
// Layer-0 derivation. Every engine maps a fixed-length seed to the same key
// pair on every call, which lets a device re-derive its identity on each boot
// without storing keys.
package keyengine

import (
	"crypto"
	"fmt"
	"strings"

	"github.com/ruteri/dice-l0/interfaces"
)

const (
	NameEd25519 = "ed25519"
	NameP256    = "p256"
	NameP384    = "p384"
)

// Names lists the engines ByName knows.
func Names() []string {
	return []string{NameEd25519, NameP256, NameP384}
}

// ByName returns the engine for name ("ed25519", "p256", "p-384", ...).
func ByName(name string) (interfaces.KeyEngine, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "") {
	case NameEd25519:
		return Ed25519{}, nil
	case NameP256:
		return P256(), nil
	case NameP384:
		return P384(), nil
	default:
		return nil, fmt.Errorf("%w: key algorithm %q", interfaces.ErrUnsupportedAlgorithm, name)
	}
}

type privateKeyExporter interface {
	PrivateKey(raw []byte) (crypto.PrivateKey, error)
}

// ExportPrivateKey converts a raw private key produced by e into the
// crypto/ed25519 or crypto/ecdsa type, for PEM encoding.
func ExportPrivateKey(e interfaces.KeyEngine, raw []byte) (crypto.PrivateKey, error) {
	x, ok := e.(privateKeyExporter)
	if !ok {
		return nil, fmt.Errorf("%w: %s keys can not be exported", interfaces.ErrUnsupportedAlgorithm, e.Name())
	}
	return x.PrivateKey(raw)
}
