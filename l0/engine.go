// Package l0 implements DICE Layer-0 identity derivation.
//
// Given the Compound Device Identifier (CDI) handed over by the DICE engine
// and the measurement (FWID) of the next firmware layer, DeriveLayer0
// deterministically derives:
//
//   - the DeviceID key pair, from digest(CDI) alone, so it is stable across
//     firmware updates;
//   - the AliasKey key pair, from digest(CDI || FWID || aliasKeyLabel), so it
//     changes whenever the next layer's firmware changes;
//
// and encodes a DeviceID CSR self-signed by DeviceID plus an AliasKey
// certificate issued by DeviceID. No key is ever stored: the same inputs
// reproduce the same keys on every boot.
//
// Every transient secret (both seeds, the DeviceID private key, signer
// copies) is overwritten before DeriveLayer0 returns, on success and on
// failure. Only the AliasKey private key leaves the call.
//
// # Usage Example
//
//	hash := interfaces.SHA2_384
//	engine, err := l0.NewEngine(l0.Config{HashAlg: &hash, Keys: keyengine.P384()})
//	if err != nil {
//	    log.Fatalf("Failed to create engine: %v", err)
//	}
//	out, err := engine.DeriveLayer0(cdi, fwid, []byte("DeviceID"), []byte("AliasKey"), csrTemplate, crtTemplate)
//	if err != nil {
//	    log.Fatalf("Layer 0 failed: %v", err)
//	}
//	defer out.Wipe()
package l0

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/dice-l0/certencoder"
	"github.com/ruteri/dice-l0/common"
	"github.com/ruteri/dice-l0/digest"
	"github.com/ruteri/dice-l0/interfaces"
	"github.com/ruteri/dice-l0/keyengine"
)

// Config selects the collaborators of an Engine. Zero values pick the
// defaults: SHA2-256, Ed25519, the X.509 encoder without size limits.
type Config struct {
	// HashAlg defaults to SHA2-256 when nil. SHA2_224 is the zero HashAlg.
	HashAlg *interfaces.HashAlg

	Digests interfaces.DigestEngine
	Keys    interfaces.KeyEngine
	Encoder interfaces.CertificateEncoder

	// CDILength is the required CDI size; 0 means DigestLength(HashAlg).
	CDILength int

	// AllowLabelReuse downgrades equal DeviceID/AliasKey labels from an
	// error to a logged warning.
	AllowLabelReuse bool

	Log *slog.Logger
}

// Engine runs Layer-0 derivations. It is immutable once created and safe
// for concurrent use as long as each call owns its buffers.
type Engine struct {
	hashAlg    interfaces.HashAlg
	digestLen  int
	cdiLen     int
	digests    interfaces.DigestEngine
	keys       interfaces.KeyEngine
	encoder    interfaces.CertificateEncoder
	labelReuse bool
	log        *slog.Logger
}

// NewEngine validates cfg and fills in defaults.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		hashAlg:    interfaces.SHA2_256,
		digests:    cfg.Digests,
		keys:       cfg.Keys,
		encoder:    cfg.Encoder,
		cdiLen:     cfg.CDILength,
		labelReuse: cfg.AllowLabelReuse,
		log:        cfg.Log,
	}

	if cfg.HashAlg != nil {
		e.hashAlg = *cfg.HashAlg
	}
	if e.digests == nil {
		e.digests = digest.Default()
	}
	if e.keys == nil {
		e.keys = keyengine.Ed25519{}
	}
	if e.encoder == nil {
		e.encoder = certencoder.New(certencoder.Limits{})
	}
	if e.log == nil {
		e.log = common.DiscardLogger()
	}

	e.digestLen = int(e.digests.DigestLength(e.hashAlg))
	if e.digestLen == 0 {
		return nil, fmt.Errorf("%w: hash %s", interfaces.ErrUnsupportedAlgorithm, e.hashAlg)
	}
	if e.cdiLen < 0 {
		return nil, fmt.Errorf("%w: negative cdi length %d", interfaces.ErrInvalidInputLength, e.cdiLen)
	}
	if e.cdiLen == 0 {
		e.cdiLen = e.digestLen
	}

	return e, nil
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide SHA2-256/Ed25519 engine, created on
// first use.
func Default() *Engine {
	defaultOnce.Do(func() {
		e, err := NewEngine(Config{})
		if err != nil {
			// the default configuration is static
			panic(err)
		}
		defaultEngine = e
	})
	return defaultEngine
}

// HashAlg is the digest algorithm used for seeds and expected of FWIDs.
func (e *Engine) HashAlg() interfaces.HashAlg { return e.hashAlg }

// Keys is the key engine deriving DeviceID and AliasKey.
func (e *Engine) Keys() interfaces.KeyEngine { return e.keys }

// CDILength is the CDI size DeriveLayer0 accepts.
func (e *Engine) CDILength() int { return e.cdiLen }

// FWIDLength is the FWID size DeriveLayer0 accepts.
func (e *Engine) FWIDLength() int { return e.digestLen }
