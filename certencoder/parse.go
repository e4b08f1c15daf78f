package certencoder

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/ruteri/dice-l0/interfaces"
)

// ErrInvalidChain is returned when a DeviceID CSR and AliasKey certificate
// do not form a valid Layer-0 chain.
var ErrInvalidChain = errors.New("invalid layer 0 certificate chain")

// AliasKeyCertificate is a parsed AliasKey certificate with its DICE
// extensions decoded.
type AliasKeyCertificate struct {
	Certificate       *x509.Certificate
	L0Version         int
	DeviceIDPublicKey crypto.PublicKey
	FWIDHashAlg       interfaces.HashAlg
	FWID              []byte
	TcbInfo           *DiceTcbInfo
}

// ParseAliasKeyCRT parses a DER certificate and its CompositeDeviceID
// extension, which is required. The TcbInfo extension is optional.
func ParseAliasKeyCRT(der []byte) (*AliasKeyCertificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aliasKey certificate: %w", err)
	}

	parsed := &AliasKeyCertificate{Certificate: cert}
	var haveComposite bool

	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(OidCompositeDeviceID):
			if err := parsed.decodeComposite(ext); err != nil {
				return nil, err
			}
			haveComposite = true
		case ext.Id.Equal(OidTcgDiceTcbInfo):
			var info DiceTcbInfo
			rest, err := asn1.Unmarshal(ext.Value, &info)
			if err != nil {
				return nil, fmt.Errorf("failed to decode tcb info: %w", err)
			}
			if len(rest) != 0 {
				return nil, errors.New("trailing data after tcb info")
			}
			parsed.TcbInfo = &info
		}
	}

	if !haveComposite {
		return nil, errors.New("aliasKey certificate has no composite device id extension")
	}
	return parsed, nil
}

func (a *AliasKeyCertificate) decodeComposite(ext pkix.Extension) error {
	var composite CompositeDeviceID
	rest, err := asn1.Unmarshal(ext.Value, &composite)
	if err != nil {
		return fmt.Errorf("failed to decode composite device id: %w", err)
	}
	if len(rest) != 0 {
		return errors.New("trailing data after composite device id")
	}

	a.DeviceIDPublicKey, err = x509.ParsePKIXPublicKey(composite.DeviceID.FullBytes)
	if err != nil {
		return fmt.Errorf("failed to parse deviceID key in composite device id: %w", err)
	}

	alg, ok := HashAlgFromOID(composite.Fwid.HashAlg)
	if !ok {
		return fmt.Errorf("unknown FWID hash algorithm %s", composite.Fwid.HashAlg)
	}

	a.L0Version = composite.Version
	a.FWIDHashAlg = alg
	a.FWID = composite.Fwid.Digest
	return nil
}

// CheckSignedBy verifies cert's signature under issuerKey.
func CheckSignedBy(cert *x509.Certificate, issuerKey crypto.PublicKey) error {
	issuer := &x509.Certificate{PublicKey: issuerKey}
	if err := issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidChain, err)
	}
	return nil
}

// ChainInfo summarises a verified Layer-0 chain.
type ChainInfo struct {
	DeviceIDSubject   pkix.Name
	DeviceIDPublicKey crypto.PublicKey
	AliasKeyPublicKey crypto.PublicKey
	AliasKey          *AliasKeyCertificate
}

// VerifyChain checks that csrDER is a self-signed DeviceID CSR, that
// crtDER is signed by the CSR's key under the CSR's subject, and that the
// certificate's CompositeDeviceID names the same DeviceID key.
func VerifyChain(csrDER, crtDER []byte) (*ChainInfo, error) {
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse deviceID CSR: %w", ErrInvalidChain, err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: deviceID CSR self-signature: %w", ErrInvalidChain, err)
	}

	alias, err := ParseAliasKeyCRT(crtDER)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChain, err)
	}

	if err := CheckSignedBy(alias.Certificate, csr.PublicKey); err != nil {
		return nil, err
	}
	if !bytes.Equal(alias.Certificate.RawIssuer, csr.RawSubject) {
		return nil, fmt.Errorf("%w: aliasKey issuer %q does not match deviceID subject %q", ErrInvalidChain, alias.Certificate.Issuer, csr.Subject)
	}
	if !PublicKeyEqual(alias.DeviceIDPublicKey, csr.PublicKey) {
		return nil, fmt.Errorf("%w: composite device id names a different deviceID key", ErrInvalidChain)
	}

	return &ChainInfo{
		DeviceIDSubject:   csr.Subject,
		DeviceIDPublicKey: csr.PublicKey,
		AliasKeyPublicKey: alias.Certificate.PublicKey,
		AliasKey:          alias,
	}, nil
}
