package l0

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/interfaces"
)

// DeriveLayer0 derives the DeviceID and AliasKey key pairs from cdi and fwid
// and encodes the DeviceID CSR and the AliasKey certificate.
//
// The ingredient records are templates: the engine fills the public keys
// and the FWID, everything else is taken as given. On error nothing is
// returned and every intermediate secret has already been overwritten.
func (e *Engine) DeriveLayer0(
	cdi, fwid, deviceIDLabel, aliasKeyLabel []byte,
	deviceIDIngredients interfaces.DeviceIDCSRIngredients,
	aliasKeyIngredients interfaces.AliasKeyCRTIngredients,
) (_ *interfaces.Layer0Output, err error) {
	defer func() {
		if err != nil {
			e.log.Debug("layer 0 derivation failed", "hash", e.hashAlg.String(), "key", e.keys.Name(), "err", err)
		}
	}()

	if err := e.validate(cdi, fwid, deviceIDLabel, aliasKeyLabel); err != nil {
		return nil, err
	}

	deviceIDKeyPair, err := e.deriveKeyPair("deviceID", cdi)
	if err != nil {
		return nil, err
	}
	defer deviceIDKeyPair.Wipe()

	aliasKeyPair, err := e.deriveKeyPair("aliasKey", cdi, fwid, aliasKeyLabel)
	if err != nil {
		return nil, err
	}
	// set just before returning; errors and panics leave it false
	done := false
	defer func() {
		if !done {
			aliasKeyPair.Wipe()
		}
	}()

	deviceIDSigner, err := e.keys.Signer(deviceIDKeyPair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("deviceID signer: %w", keyErr(err))
	}
	defer deviceIDSigner.Wipe()

	deviceIDPublicKey, err := e.keys.PublicKey(deviceIDKeyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("deviceID public key: %w", keyErr(err))
	}
	aliasKeyPublicKey, err := e.keys.PublicKey(aliasKeyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("aliasKey public key: %w", keyErr(err))
	}

	deviceIDIngredients.PublicKey = deviceIDPublicKey
	csr, err := e.encoder.EncodeDeviceIDCSR(deviceIDIngredients, deviceIDSigner)
	if err != nil {
		return nil, fmt.Errorf("deviceID CSR: %w", encoderErr(err))
	}

	aliasKeyIngredients.FWIDHashAlg = e.hashAlg
	aliasKeyIngredients.FWID = bytes.Clone(fwid)
	aliasKeyIngredients.DeviceIDPublicKey = deviceIDPublicKey
	aliasKeyIngredients.PublicKey = aliasKeyPublicKey
	crt, err := e.encoder.EncodeAliasKeyCRT(aliasKeyIngredients, deviceIDSigner)
	if err != nil {
		return nil, fmt.Errorf("aliasKey certificate: %w", encoderErr(err))
	}

	e.log.Debug("layer 0 derived",
		"hash", e.hashAlg.String(),
		"key", e.keys.Name(),
		"deviceID", cryptoutils.Fingerprint(deviceIDKeyPair.PublicKey),
		"aliasKey", cryptoutils.Fingerprint(aliasKeyPair.PublicKey),
		"csrLen", len(csr),
		"crtLen", len(crt),
	)

	done = true
	return &interfaces.Layer0Output{
		DeviceIDPublicKey:  deviceIDKeyPair.PublicKey,
		AliasKeyPublicKey:  aliasKeyPair.PublicKey,
		AliasKeyPrivateKey: aliasKeyPair.PrivateKey,
		DeviceIDCSR:        csr,
		AliasKeyCRT:        crt,
	}, nil
}

func (e *Engine) validate(cdi, fwid, deviceIDLabel, aliasKeyLabel []byte) error {
	if len(cdi) != e.cdiLen {
		return fmt.Errorf("%w: got %d bytes, want %d", interfaces.ErrInvalidCdiLength, len(cdi), e.cdiLen)
	}
	if len(fwid) != e.digestLen {
		return fmt.Errorf("%w: got %d bytes, want %d", interfaces.ErrInvalidFwidLength, len(fwid), e.digestLen)
	}
	if len(deviceIDLabel) == 0 {
		return fmt.Errorf("%w: deviceID", interfaces.ErrEmptyLabel)
	}
	if len(aliasKeyLabel) == 0 {
		return fmt.Errorf("%w: aliasKey", interfaces.ErrEmptyLabel)
	}
	if bytes.Equal(deviceIDLabel, aliasKeyLabel) {
		if !e.labelReuse {
			return interfaces.ErrInsecureLabelReuse
		}
		e.log.Warn("deviceID and aliasKey labels are equal", "labelLen", len(aliasKeyLabel))
	}
	return nil
}

// deriveKeyPair hashes segments into a seed and expands it. The seed is
// gone by the time this returns.
func (e *Engine) deriveKeyPair(which string, segments ...[]byte) (*interfaces.KeyPair, error) {
	digest, err := e.digests.Digest(e.hashAlg, segments...)
	seed := cryptoutils.NewSecret(digest)
	defer seed.Wipe()
	if err != nil {
		return nil, fmt.Errorf("%s seed: %w", which, err)
	}

	kp, err := e.keys.DeriveKeyPair(seed.Bytes())
	seed.Wipe()
	if err != nil {
		return nil, fmt.Errorf("%s key pair: %w", which, keyErr(err))
	}
	return kp, nil
}

// keyErr keeps typed key engine errors and classifies the rest as
// derivation failures.
func keyErr(err error) error {
	switch {
	case errors.Is(err, interfaces.ErrInvalidInputLength),
		errors.Is(err, interfaces.ErrKeyDerivationFailure),
		errors.Is(err, interfaces.ErrSigningFailure):
		return err
	}
	return fmt.Errorf("%w: %w", interfaces.ErrKeyDerivationFailure, err)
}

func encoderErr(err error) error {
	switch {
	case errors.Is(err, interfaces.ErrEncodingFailure),
		errors.Is(err, interfaces.ErrSigningFailure),
		errors.Is(err, interfaces.ErrInvalidInputLength):
		return err
	}
	return fmt.Errorf("%w: %w", interfaces.ErrEncodingFailure, err)
}
