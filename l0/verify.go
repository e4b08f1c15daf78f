package l0

import (
	"fmt"

	"github.com/ruteri/dice-l0/certencoder"
)

// VerifyAliasKeyCRT checks that crt is an AliasKey certificate certifying
// aliasKeyPublicKey, signed by deviceIDPublicKey, and that its
// CompositeDeviceID extension names the same DeviceID key. Keys are in the
// raw encoding of the engine's key algorithm.
func (e *Engine) VerifyAliasKeyCRT(deviceIDPublicKey, aliasKeyPublicKey, crt []byte) (*certencoder.AliasKeyCertificate, error) {
	deviceID, err := e.keys.PublicKey(deviceIDPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: deviceID public key: %w", certencoder.ErrInvalidChain, err)
	}
	aliasKey, err := e.keys.PublicKey(aliasKeyPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: aliasKey public key: %w", certencoder.ErrInvalidChain, err)
	}

	parsed, err := certencoder.ParseAliasKeyCRT(crt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", certencoder.ErrInvalidChain, err)
	}
	if err := certencoder.CheckSignedBy(parsed.Certificate, deviceID); err != nil {
		return nil, err
	}
	if !certencoder.PublicKeyEqual(parsed.Certificate.PublicKey, aliasKey) {
		return nil, fmt.Errorf("%w: certificate does not certify the aliasKey", certencoder.ErrInvalidChain)
	}
	if !certencoder.PublicKeyEqual(parsed.DeviceIDPublicKey, deviceID) {
		return nil, fmt.Errorf("%w: composite device id names a different deviceID key", certencoder.ErrInvalidChain)
	}
	if parsed.FWIDHashAlg != e.hashAlg {
		e.log.Warn("aliasKey FWID hash differs from engine hash", "fwidHash", parsed.FWIDHashAlg.String(), "hash", e.hashAlg.String())
	}
	return parsed, nil
}
