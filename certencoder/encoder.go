// Package certencoder encodes Layer-0 ingredient records as X.509
// structures: the self-signed DeviceID CSR and the AliasKey certificate
// issued by DeviceID, carrying the DICE CompositeDeviceID and TcbInfo
// extensions. It also parses those structures back and verifies the
// DeviceID to AliasKey link.
package certencoder

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"unicode/utf8"

	"github.com/ruteri/dice-l0/interfaces"
)

// X.520 upper bounds.
const (
	ubCommonName   = 64
	ubOrganization = 64
	countryLength  = 2

	maxSerialLength = 20
)

// Limits caps the size of encoded outputs, as the caller-provided buffers of
// a fixed-memory device would. Zero means unlimited.
type Limits struct {
	MaxDeviceIDCSRLen int
	MaxAliasKeyCRTLen int
}

// Encoder is the X.509 CertificateEncoder. It holds no mutable state.
type Encoder struct {
	limits Limits
	rand   io.Reader
}

var _ interfaces.CertificateEncoder = (*Encoder)(nil)

// New returns an encoder enforcing limits.
func New(limits Limits) *Encoder {
	return &Encoder{limits: limits, rand: rand.Reader}
}

// EncodeDeviceIDCSR builds a PKCS#10 request for ingredients.PublicKey,
// self-signed by signer.
func (e *Encoder) EncodeDeviceIDCSR(ingredients interfaces.DeviceIDCSRIngredients, signer crypto.Signer) ([]byte, error) {
	if ingredients.Version != 0 {
		return nil, encodingErr("unsupported CSR version %d", ingredients.Version)
	}
	if ingredients.PublicKey == nil {
		return nil, encodingErr("deviceID CSR has no public key")
	}
	if !PublicKeyEqual(signer.Public(), ingredients.PublicKey) {
		return nil, encodingErr("deviceID CSR signer does not match its public key")
	}

	subject, err := pkixName("subject", ingredients.Subject)
	if err != nil {
		return nil, err
	}

	template := &x509.CertificateRequest{Subject: subject}
	if ingredients.KeyUsage != 0 {
		ext, err := keyUsageExtension(uint16(ingredients.KeyUsage))
		if err != nil {
			return nil, encodingErr("key usage: %v", err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	}

	der, err := x509.CreateCertificateRequest(e.rand, template, signer)
	if err != nil {
		return nil, wrapX509Err("deviceID CSR", err)
	}

	if e.limits.MaxDeviceIDCSRLen > 0 && len(der) > e.limits.MaxDeviceIDCSRLen {
		return nil, encodingErr("deviceID CSR of %d bytes exceeds limit of %d", len(der), e.limits.MaxDeviceIDCSRLen)
	}
	return der, nil
}

// EncodeAliasKeyCRT builds the AliasKey certificate, issued under
// ingredients.Issuer and signed by signer, which must hold the DeviceID key.
func (e *Encoder) EncodeAliasKeyCRT(ingredients interfaces.AliasKeyCRTIngredients, signer crypto.Signer) ([]byte, error) {
	if ingredients.Version != 0 && ingredients.Version != 3 {
		return nil, encodingErr("unsupported certificate version %d", ingredients.Version)
	}
	if ingredients.PublicKey == nil || ingredients.DeviceIDPublicKey == nil {
		return nil, encodingErr("aliasKey certificate is missing a public key")
	}
	if len(ingredients.FWID) == 0 {
		return nil, encodingErr("aliasKey certificate has no FWID")
	}
	if !PublicKeyEqual(signer.Public(), ingredients.DeviceIDPublicKey) {
		return nil, encodingErr("aliasKey certificate signer is not the deviceID key")
	}
	if ingredients.NotBefore.IsZero() || !ingredients.NotAfter.After(ingredients.NotBefore) {
		return nil, encodingErr("invalid validity period %s - %s", ingredients.NotBefore, ingredients.NotAfter)
	}

	fwidOID, ok := HashAlgOID(ingredients.FWIDHashAlg)
	if !ok {
		return nil, encodingErr("no object identifier for FWID hash %s", ingredients.FWIDHashAlg)
	}

	issuer, err := pkixName("issuer", ingredients.Issuer)
	if err != nil {
		return nil, err
	}
	subject, err := pkixName("subject", ingredients.Subject)
	if err != nil {
		return nil, err
	}

	aliasSPKI, err := x509.MarshalPKIXPublicKey(ingredients.PublicKey)
	if err != nil {
		return nil, encodingErr("aliasKey public key: %v", err)
	}
	deviceIDSPKI, err := x509.MarshalPKIXPublicKey(ingredients.DeviceIDPublicKey)
	if err != nil {
		return nil, encodingErr("deviceID public key: %v", err)
	}

	serial, err := serialNumber(ingredients.SerialNumber, aliasSPKI)
	if err != nil {
		return nil, err
	}

	fwid := FirmwareID{HashAlg: fwidOID, Digest: ingredients.FWID}
	composite, err := compositeDeviceIDExtension(ingredients.L0Version, deviceIDSPKI, fwid)
	if err != nil {
		return nil, encodingErr("%v", err)
	}
	tcbInfo, err := tcbInfoExtension(DiceTcbInfo{
		Vendor: ingredients.Vendor,
		Model:  ingredients.Model,
		SVN:    ingredients.SVN,
		Layer:  0,
		Fwids:  []FirmwareID{fwid},
	})
	if err != nil {
		return nil, encodingErr("%v", err)
	}

	parent := &x509.Certificate{
		Subject:      issuer,
		PublicKey:    ingredients.DeviceIDPublicKey,
		SubjectKeyId: keyID(deviceIDSPKI),
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             ingredients.NotBefore,
		NotAfter:              ingredients.NotAfter,
		KeyUsage:              ingredients.KeyUsage,
		ExtKeyUsage:           ingredients.ExtKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  false,
		SubjectKeyId:          keyID(aliasSPKI),
		ExtraExtensions:       []pkix.Extension{composite, tcbInfo},
	}

	der, err := x509.CreateCertificate(e.rand, template, parent, ingredients.PublicKey, signer)
	if err != nil {
		return nil, wrapX509Err("aliasKey certificate", err)
	}

	if e.limits.MaxAliasKeyCRTLen > 0 && len(der) > e.limits.MaxAliasKeyCRTLen {
		return nil, encodingErr("aliasKey certificate of %d bytes exceeds limit of %d", len(der), e.limits.MaxAliasKeyCRTLen)
	}
	return der, nil
}

func pkixName(field string, n interfaces.Name) (pkix.Name, error) {
	if utf8.RuneCountInString(n.CommonName) > ubCommonName {
		return pkix.Name{}, encodingErr("%s common name exceeds %d characters", field, ubCommonName)
	}
	if utf8.RuneCountInString(n.Organization) > ubOrganization {
		return pkix.Name{}, encodingErr("%s organization exceeds %d characters", field, ubOrganization)
	}
	if n.Country != "" && len(n.Country) != countryLength {
		return pkix.Name{}, encodingErr("%s country must be %d characters", field, countryLength)
	}

	name := pkix.Name{CommonName: n.CommonName}
	if n.Organization != "" {
		name.Organization = []string{n.Organization}
	}
	if n.Country != "" {
		name.Country = []string{n.Country}
	}
	return name, nil
}

// serialNumber uses the caller's serial, or the first 20 bytes of
// SHA-256(aliasSPKI) with the top bit cleared.
func serialNumber(given, aliasSPKI []byte) (*big.Int, error) {
	if len(given) > maxSerialLength {
		return nil, encodingErr("serial number of %d bytes exceeds %d", len(given), maxSerialLength)
	}
	if len(given) > 0 {
		serial := new(big.Int).SetBytes(given)
		if serial.Sign() == 0 {
			return nil, encodingErr("serial number must be positive")
		}
		return serial, nil
	}

	sum := sha256.Sum256(aliasSPKI)
	derived := sum[:maxSerialLength]
	derived[0] &= 0x7f
	serial := new(big.Int).SetBytes(derived)
	if serial.Sign() == 0 {
		serial.SetInt64(1)
	}
	return serial, nil
}

func keyID(spki []byte) []byte {
	sum := sha256.Sum256(spki)
	return sum[:20]
}

type equaler interface {
	Equal(crypto.PublicKey) bool
}

// PublicKeyEqual reports whether a and b are the same key.
func PublicKeyEqual(a, b crypto.PublicKey) bool {
	ea, ok := a.(equaler)
	return ok && ea.Equal(b)
}

func encodingErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", interfaces.ErrEncodingFailure, fmt.Sprintf(format, args...))
}

// wrapX509Err keeps signing failures distinguishable from encoding failures.
func wrapX509Err(what string, err error) error {
	if errors.Is(err, interfaces.ErrSigningFailure) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", interfaces.ErrEncodingFailure, what, err)
}
