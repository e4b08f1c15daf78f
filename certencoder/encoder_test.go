package certencoder

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/dice-l0/interfaces"
	"github.com/ruteri/dice-l0/keyengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deviceName = interfaces.Name{CommonName: "DeviceID", Organization: "Example Devices", Country: "US"}

type identity struct {
	pair   *interfaces.KeyPair
	pub    crypto.PublicKey
	signer interfaces.Signer
}

func newIdentity(t *testing.T, e interfaces.KeyEngine, fill byte) identity {
	t.Helper()
	kp, err := e.DeriveKeyPair(bytes.Repeat([]byte{fill}, e.SeedLength()))
	require.NoError(t, err)
	pub, err := e.PublicKey(kp.PublicKey)
	require.NoError(t, err)
	signer, err := e.Signer(kp.PrivateKey)
	require.NoError(t, err)
	return identity{pair: kp, pub: pub, signer: signer}
}

func csrIngredients(pub crypto.PublicKey) interfaces.DeviceIDCSRIngredients {
	return interfaces.DeviceIDCSRIngredients{
		Subject:   deviceName,
		KeyUsage:  x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		PublicKey: pub,
	}
}

func crtIngredients(deviceID, alias crypto.PublicKey) interfaces.AliasKeyCRTIngredients {
	fwid := sha256.Sum256([]byte("firmware-v1"))
	return interfaces.AliasKeyCRTIngredients{
		Issuer:            deviceName,
		Subject:           interfaces.Name{CommonName: "AliasKey", Organization: "Example Devices", Country: "US"},
		NotBefore:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:          time.Date(2049, 12, 31, 23, 59, 59, 0, time.UTC),
		L0Version:         1,
		KeyUsage:          x509.KeyUsageDigitalSignature,
		ExtKeyUsage:       []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		Vendor:            "Example",
		Model:             "L0",
		SVN:               2,
		FWIDHashAlg:       interfaces.SHA2_256,
		FWID:              fwid[:],
		DeviceIDPublicKey: deviceID,
		PublicKey:         alias,
	}
}

func TestEncodeAndVerifyChain(t *testing.T) {
	for _, e := range []interfaces.KeyEngine{keyengine.Ed25519{}, keyengine.P256(), keyengine.P384()} {
		t.Run(e.Name(), func(t *testing.T) {
			deviceID := newIdentity(t, e, 1)
			alias := newIdentity(t, e, 2)
			enc := New(Limits{})

			csr, err := enc.EncodeDeviceIDCSR(csrIngredients(deviceID.pub), deviceID.signer)
			require.NoError(t, err)

			ing := crtIngredients(deviceID.pub, alias.pub)
			crt, err := enc.EncodeAliasKeyCRT(ing, deviceID.signer)
			require.NoError(t, err)

			info, err := VerifyChain(csr, crt)
			require.NoError(t, err)

			assert.True(t, PublicKeyEqual(info.DeviceIDPublicKey, deviceID.pub))
			assert.True(t, PublicKeyEqual(info.AliasKeyPublicKey, alias.pub))
			assert.Equal(t, "DeviceID", info.DeviceIDSubject.CommonName)

			parsed := info.AliasKey
			assert.Equal(t, 1, parsed.L0Version)
			assert.Equal(t, interfaces.SHA2_256, parsed.FWIDHashAlg)
			assert.Equal(t, ing.FWID, parsed.FWID)
			require.NotNil(t, parsed.TcbInfo)
			assert.Equal(t, "Example", parsed.TcbInfo.Vendor)
			assert.Equal(t, "L0", parsed.TcbInfo.Model)
			assert.Equal(t, 2, parsed.TcbInfo.SVN)
			require.Len(t, parsed.TcbInfo.Fwids, 1)
			assert.Equal(t, ing.FWID, parsed.TcbInfo.Fwids[0].Digest)

			cert := parsed.Certificate
			assert.Equal(t, "AliasKey", cert.Subject.CommonName)
			assert.Equal(t, "DeviceID", cert.Issuer.CommonName)
			assert.False(t, cert.IsCA)
			assert.Equal(t, x509.KeyUsageDigitalSignature, cert.KeyUsage)
			assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, cert.ExtKeyUsage)
			assert.NotEmpty(t, cert.AuthorityKeyId)
			assert.Equal(t, 3, cert.Version)
		})
	}
}

func TestEd25519EncodingIsDeterministic(t *testing.T) {
	deviceID := newIdentity(t, keyengine.Ed25519{}, 1)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)
	enc := New(Limits{})

	csr1, err := enc.EncodeDeviceIDCSR(csrIngredients(deviceID.pub), deviceID.signer)
	require.NoError(t, err)
	csr2, err := enc.EncodeDeviceIDCSR(csrIngredients(deviceID.pub), deviceID.signer)
	require.NoError(t, err)
	assert.Equal(t, csr1, csr2)

	crt1, err := enc.EncodeAliasKeyCRT(crtIngredients(deviceID.pub, alias.pub), deviceID.signer)
	require.NoError(t, err)
	crt2, err := enc.EncodeAliasKeyCRT(crtIngredients(deviceID.pub, alias.pub), deviceID.signer)
	require.NoError(t, err)
	assert.Equal(t, crt1, crt2)
}

func TestCSRKeyUsageExtension(t *testing.T) {
	id := newIdentity(t, keyengine.Ed25519{}, 1)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)
	enc := New(Limits{})

	csrDER, err := enc.EncodeDeviceIDCSR(csrIngredients(id.pub), id.signer)
	require.NoError(t, err)
	csr, err := x509.ParseCertificateRequest(csrDER)
	require.NoError(t, err)

	// a certificate carrying the same key usage, encoded by crypto/x509
	ing := crtIngredients(id.pub, alias.pub)
	ing.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign
	crtDER, err := enc.EncodeAliasKeyCRT(ing, id.signer)
	require.NoError(t, err)
	crt, err := x509.ParseCertificate(crtDER)
	require.NoError(t, err)

	var csrKU, crtKU []byte
	for _, ext := range csr.Extensions {
		if ext.Id.Equal(oidExtensionKeyUsage) {
			csrKU = ext.Value
			assert.True(t, ext.Critical)
		}
	}
	for _, ext := range crt.Extensions {
		if ext.Id.Equal(oidExtensionKeyUsage) {
			crtKU = ext.Value
		}
	}
	require.NotNil(t, csrKU)
	assert.Equal(t, crtKU, csrKU)

	noKU := csrIngredients(id.pub)
	noKU.KeyUsage = 0
	csrDER, err = enc.EncodeDeviceIDCSR(noKU, id.signer)
	require.NoError(t, err)
	csr, err = x509.ParseCertificateRequest(csrDER)
	require.NoError(t, err)
	assert.Empty(t, csr.Extensions)
}

func TestSerialNumber(t *testing.T) {
	id := newIdentity(t, keyengine.Ed25519{}, 1)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)
	enc := New(Limits{})

	ing := crtIngredients(id.pub, alias.pub)
	ing.SerialNumber = []byte{0x01, 0x02, 0x03}
	der, err := enc.EncodeAliasKeyCRT(ing, id.signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	assert.Equal(t, int64(0x010203), cert.SerialNumber.Int64())

	ing.SerialNumber = nil
	der, err = enc.EncodeAliasKeyCRT(ing, id.signer)
	require.NoError(t, err)
	cert, err = x509.ParseCertificate(der)
	require.NoError(t, err)
	assert.Equal(t, 1, cert.SerialNumber.Sign())
	assert.LessOrEqual(t, len(cert.SerialNumber.Bytes()), maxSerialLength)

	ing.SerialNumber = make([]byte, 21)
	ing.SerialNumber[0] = 1
	_, err = enc.EncodeAliasKeyCRT(ing, id.signer)
	assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)

	ing.SerialNumber = []byte{0, 0}
	_, err = enc.EncodeAliasKeyCRT(ing, id.signer)
	assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)
}

func TestEncodingFailures(t *testing.T) {
	id := newIdentity(t, keyengine.Ed25519{}, 1)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)
	other := newIdentity(t, keyengine.Ed25519{}, 3)
	enc := New(Limits{})

	csrCases := []struct {
		name   string
		mutate func(*interfaces.DeviceIDCSRIngredients)
		signer crypto.Signer
	}{
		{"long common name", func(i *interfaces.DeviceIDCSRIngredients) { i.Subject.CommonName = strings.Repeat("a", 65) }, id.signer},
		{"long organization", func(i *interfaces.DeviceIDCSRIngredients) { i.Subject.Organization = strings.Repeat("o", 65) }, id.signer},
		{"bad country", func(i *interfaces.DeviceIDCSRIngredients) { i.Subject.Country = "USA" }, id.signer},
		{"bad version", func(i *interfaces.DeviceIDCSRIngredients) { i.Version = 1 }, id.signer},
		{"missing key", func(i *interfaces.DeviceIDCSRIngredients) { i.PublicKey = nil }, id.signer},
		{"foreign signer", func(i *interfaces.DeviceIDCSRIngredients) {}, other.signer},
	}
	for _, tc := range csrCases {
		t.Run("csr "+tc.name, func(t *testing.T) {
			ing := csrIngredients(id.pub)
			tc.mutate(&ing)
			_, err := enc.EncodeDeviceIDCSR(ing, tc.signer)
			assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)
		})
	}

	crtCases := []struct {
		name   string
		mutate func(*interfaces.AliasKeyCRTIngredients)
		signer crypto.Signer
	}{
		{"long issuer", func(i *interfaces.AliasKeyCRTIngredients) { i.Issuer.CommonName = strings.Repeat("a", 65) }, id.signer},
		{"bad subject country", func(i *interfaces.AliasKeyCRTIngredients) { i.Subject.Country = "U" }, id.signer},
		{"bad version", func(i *interfaces.AliasKeyCRTIngredients) { i.Version = 2 }, id.signer},
		{"inverted validity", func(i *interfaces.AliasKeyCRTIngredients) { i.NotAfter = i.NotBefore.Add(-time.Hour) }, id.signer},
		{"zero validity", func(i *interfaces.AliasKeyCRTIngredients) { i.NotBefore = time.Time{} }, id.signer},
		{"no fwid", func(i *interfaces.AliasKeyCRTIngredients) { i.FWID = nil }, id.signer},
		{"unknown fwid alg", func(i *interfaces.AliasKeyCRTIngredients) { i.FWIDHashAlg = interfaces.HashAlg(4) }, id.signer},
		{"missing alias key", func(i *interfaces.AliasKeyCRTIngredients) { i.PublicKey = nil }, id.signer},
		{"signer is not deviceID", func(i *interfaces.AliasKeyCRTIngredients) {}, other.signer},
	}
	for _, tc := range crtCases {
		t.Run("crt "+tc.name, func(t *testing.T) {
			ing := crtIngredients(id.pub, alias.pub)
			tc.mutate(&ing)
			_, err := enc.EncodeAliasKeyCRT(ing, tc.signer)
			assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)
		})
	}
}

func TestLimits(t *testing.T) {
	id := newIdentity(t, keyengine.Ed25519{}, 1)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)

	_, err := New(Limits{MaxDeviceIDCSRLen: 16}).EncodeDeviceIDCSR(csrIngredients(id.pub), id.signer)
	assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)

	_, err = New(Limits{MaxAliasKeyCRTLen: 16}).EncodeAliasKeyCRT(crtIngredients(id.pub, alias.pub), id.signer)
	assert.ErrorIs(t, err, interfaces.ErrEncodingFailure)

	generous := New(Limits{MaxDeviceIDCSRLen: 4096, MaxAliasKeyCRTLen: 4096})
	_, err = generous.EncodeDeviceIDCSR(csrIngredients(id.pub), id.signer)
	assert.NoError(t, err)
	_, err = generous.EncodeAliasKeyCRT(crtIngredients(id.pub, alias.pub), id.signer)
	assert.NoError(t, err)
}

func TestWipedSignerIsSigningFailure(t *testing.T) {
	// the ecdsa signer keeps its public half after Wipe
	id := newIdentity(t, keyengine.P256(), 1)
	pub := id.pub
	id.signer.Wipe()

	_, err := New(Limits{}).EncodeDeviceIDCSR(csrIngredients(pub), id.signer)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)
}

func TestVerifyChainRejects(t *testing.T) {
	enc := New(Limits{})
	idA := newIdentity(t, keyengine.Ed25519{}, 1)
	idB := newIdentity(t, keyengine.Ed25519{}, 5)
	alias := newIdentity(t, keyengine.Ed25519{}, 2)

	csrA, err := enc.EncodeDeviceIDCSR(csrIngredients(idA.pub), idA.signer)
	require.NoError(t, err)
	crtB, err := enc.EncodeAliasKeyCRT(crtIngredients(idB.pub, alias.pub), idB.signer)
	require.NoError(t, err)

	_, err = VerifyChain(csrA, crtB)
	assert.ErrorIs(t, err, ErrInvalidChain)

	ing := crtIngredients(idA.pub, alias.pub)
	ing.Issuer.CommonName = "Someone Else"
	crtWrongIssuer, err := enc.EncodeAliasKeyCRT(ing, idA.signer)
	require.NoError(t, err)
	_, err = VerifyChain(csrA, crtWrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidChain)

	_, err = VerifyChain([]byte("garbage"), crtB)
	assert.ErrorIs(t, err, ErrInvalidChain)

	_, err = VerifyChain(csrA, []byte("garbage"))
	assert.ErrorIs(t, err, ErrInvalidChain)
}

func TestHashAlgOIDRoundTrip(t *testing.T) {
	for _, alg := range interfaces.HashAlgs() {
		oid, ok := HashAlgOID(alg)
		require.True(t, ok, alg.String())
		back, ok := HashAlgFromOID(oid)
		require.True(t, ok)
		assert.Equal(t, alg, back)
	}
}
