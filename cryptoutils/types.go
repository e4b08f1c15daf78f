package cryptoutils

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	pemTypeCSR        = "CERTIFICATE REQUEST"
	pemTypeCert       = "CERTIFICATE"
	pemTypePublicKey  = "PUBLIC KEY"
	pemTypePrivateKey = "PRIVATE KEY"
)

// DeviceIDCSR is a PEM encoded DeviceID certificate request.
type DeviceIDCSR []byte

// DeviceIDCSRFromDER wraps a DER encoded CSR.
func DeviceIDCSRFromDER(der []byte) DeviceIDCSR {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCSR, Bytes: der})
}

// ParseDeviceIDCSR accepts a PEM or DER certificate request and checks that
// it decodes. The self-signature is left to chain verification.
func ParseDeviceIDCSR(data []byte) (DeviceIDCSR, error) {
	der, err := DecodeCSRDER(data)
	if err != nil {
		return nil, err
	}
	if _, err := x509.ParseCertificateRequest(der); err != nil {
		return nil, fmt.Errorf("malformed DeviceID CSR: %w", err)
	}
	return DeviceIDCSRFromDER(der), nil
}

// DER returns the request inside the PEM block, nil if there is none.
func (csr DeviceIDCSR) DER() []byte {
	return pemContents(csr, pemTypeCSR)
}

// AliasKeyCert is a PEM encoded AliasKey certificate.
type AliasKeyCert []byte

// AliasKeyCertFromDER wraps a DER encoded certificate.
func AliasKeyCertFromDER(der []byte) AliasKeyCert {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCert, Bytes: der})
}

// ParseAliasKeyCert accepts a PEM or DER certificate and checks that it
// decodes.
func ParseAliasKeyCert(data []byte) (AliasKeyCert, error) {
	der, err := DecodeCertDER(data)
	if err != nil {
		return nil, err
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return nil, fmt.Errorf("malformed AliasKey certificate: %w", err)
	}
	return AliasKeyCertFromDER(der), nil
}

// DER returns the certificate inside the PEM block, nil if there is none.
func (cert AliasKeyCert) DER() []byte {
	return pemContents(cert, pemTypeCert)
}

func pemContents(data []byte, pemType string) []byte {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemType {
		return nil
	}
	return block.Bytes
}
