package certencoder

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/bits"

	"github.com/ruteri/dice-l0/interfaces"
)

var (
	// OidCompositeDeviceID is the RIoT extension carrying the DeviceID key
	// and the FWID inside the AliasKey certificate.
	OidCompositeDeviceID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 89, 3, 1}

	// OidTcgDiceTcbInfo is tcg-dice-TcbInfo.
	OidTcgDiceTcbInfo = asn1.ObjectIdentifier{2, 23, 133, 5, 4, 1}

	oidExtensionKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}
)

var hashAlgOIDs = map[interfaces.HashAlg]asn1.ObjectIdentifier{
	interfaces.SHA2_224: {2, 16, 840, 1, 101, 3, 4, 2, 4},
	interfaces.SHA2_256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	interfaces.SHA2_384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	interfaces.SHA2_512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
	interfaces.SHA3_224: {2, 16, 840, 1, 101, 3, 4, 2, 7},
	interfaces.SHA3_256: {2, 16, 840, 1, 101, 3, 4, 2, 8},
	interfaces.SHA3_384: {2, 16, 840, 1, 101, 3, 4, 2, 9},
	interfaces.SHA3_512: {2, 16, 840, 1, 101, 3, 4, 2, 10},
	interfaces.Blake2S:  {1, 3, 6, 1, 4, 1, 1722, 12, 2, 2, 8},
	interfaces.Blake2B:  {1, 3, 6, 1, 4, 1, 1722, 12, 2, 1, 16},
}

// HashAlgOID returns the object identifier of alg.
func HashAlgOID(alg interfaces.HashAlg) (asn1.ObjectIdentifier, bool) {
	oid, ok := hashAlgOIDs[alg]
	return oid, ok
}

// HashAlgFromOID is the inverse of HashAlgOID.
func HashAlgFromOID(oid asn1.ObjectIdentifier) (interfaces.HashAlg, bool) {
	for alg, o := range hashAlgOIDs {
		if o.Equal(oid) {
			return alg, true
		}
	}
	return 0, false
}

// FirmwareID is the digest of the measured next-layer firmware.
//
//	FWID ::== SEQUENCE {
//	    hashAlg OBJECT IDENTIFIER,
//	    digest  OCTET STRING
//	}
type FirmwareID struct {
	HashAlg asn1.ObjectIdentifier
	Digest  []byte
}

// CompositeDeviceID binds the AliasKey certificate to the DeviceID key and
// the firmware it was derived for.
//
//	CompositeDeviceID ::= SEQUENCE {
//	    version  INTEGER,
//	    deviceID SubjectPublicKeyInfo,
//	    fwid     FWID
//	}
type CompositeDeviceID struct {
	Version  int
	DeviceID asn1.RawValue
	Fwid     FirmwareID
}

// DiceTcbInfo is the subset of tcg-dice-TcbInfo emitted by Layer 0.
//
//	DiceTcbInfo ::== SEQUENCE {
//	    vendor [0] IMPLICIT UTF8String OPTIONAL,
//	    model  [1] IMPLICIT UTF8String OPTIONAL,
//	    svn    [3] IMPLICIT INTEGER OPTIONAL,
//	    layer  [4] IMPLICIT INTEGER OPTIONAL,
//	    fwids  [6] IMPLICIT FWIDLIST OPTIONAL
//	}
type DiceTcbInfo struct {
	Vendor string       `asn1:"optional,tag:0,utf8"`
	Model  string       `asn1:"optional,tag:1,utf8"`
	SVN    int          `asn1:"optional,tag:3"`
	Layer  int          `asn1:"optional,tag:4"`
	Fwids  []FirmwareID `asn1:"optional,tag:6"`
}

func compositeDeviceIDExtension(version int, deviceIDSPKI []byte, fwid FirmwareID) (pkix.Extension, error) {
	value, err := asn1.Marshal(CompositeDeviceID{
		Version:  version,
		DeviceID: asn1.RawValue{FullBytes: deviceIDSPKI},
		Fwid:     fwid,
	})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("composite device id: %w", err)
	}
	return pkix.Extension{Id: OidCompositeDeviceID, Value: value}, nil
}

func tcbInfoExtension(info DiceTcbInfo) (pkix.Extension, error) {
	value, err := asn1.Marshal(info)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("tcb info: %w", err)
	}
	return pkix.Extension{Id: OidTcgDiceTcbInfo, Value: value}, nil
}

// keyUsageExtension encodes ku the way crypto/x509 does for certificates;
// CSR templates have no KeyUsage field, so it goes in as an extension request.
func keyUsageExtension(ku uint16) (pkix.Extension, error) {
	var a [2]byte
	a[0] = bits.Reverse8(byte(ku))
	a[1] = bits.Reverse8(byte(ku >> 8))

	l := 1
	if a[1] != 0 {
		l = 2
	}
	bitString := a[:l]

	value, err := asn1.Marshal(asn1.BitString{Bytes: bitString, BitLength: bitLength(bitString)})
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: oidExtensionKeyUsage, Critical: true, Value: value}, nil
}

// bitLength drops trailing zero bits (DER named bit list rule).
func bitLength(bitString []byte) int {
	bitLen := len(bitString) * 8
	for i := range bitString {
		b := bitString[len(bitString)-i-1]
		for bit := uint(0); bit < 8; bit++ {
			if (b>>bit)&1 == 1 {
				return bitLen
			}
			bitLen--
		}
	}
	return 0
}
