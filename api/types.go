// Package api defines the wire types shared by the l0ctl CLI and the
// verifier service: the derivation output bundle and the verification
// request and response. Every type encodes to JSON, with byte fields as
// 0x-prefixed hex, and to CBOR with integer map keys.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fxamacker/cbor/v2"
	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/interfaces"
)

// Content types understood by the verifier.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1024,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR encodes v deterministically (RFC 8949 core deterministic).
func MarshalCBOR(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// UnmarshalCBOR decodes data into v, rejecting duplicate map keys.
func UnmarshalCBOR(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

// Encode marshals v for contentType.
func Encode(contentType string, v any) ([]byte, error) {
	switch contentType {
	case ContentTypeCBOR:
		return MarshalCBOR(v)
	case ContentTypeJSON, "":
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

// Decode unmarshals data encoded as contentType into v.
func Decode(contentType string, data []byte, v any) error {
	switch contentType {
	case ContentTypeCBOR:
		return UnmarshalCBOR(data, v)
	case ContentTypeJSON, "":
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported content type %q", contentType)
	}
}

// Layer0Bundle is a Layer0Output together with the algorithms that
// produced it. AliasKeyPrivateKey is only present when the caller asked for
// it.
type Layer0Bundle struct {
	HashAlg            string        `json:"hash_alg" cbor:"1,keyasint"`
	KeyAlg             string        `json:"key_alg" cbor:"2,keyasint"`
	DeviceIDPublicKey  hexutil.Bytes `json:"device_id_public_key" cbor:"3,keyasint"`
	AliasKeyPublicKey  hexutil.Bytes `json:"alias_key_public_key" cbor:"4,keyasint"`
	AliasKeyPrivateKey hexutil.Bytes `json:"alias_key_private_key,omitempty" cbor:"5,keyasint,omitempty"`
	DeviceIDCSR        hexutil.Bytes `json:"device_id_csr" cbor:"6,keyasint"`
	AliasKeyCRT        hexutil.Bytes `json:"alias_key_crt" cbor:"7,keyasint"`
}

// NewLayer0Bundle copies out. The private key is copied only when
// withPrivateKey is set; out itself is not modified.
func NewLayer0Bundle(out *interfaces.Layer0Output, hashAlg interfaces.HashAlg, keyAlg string, withPrivateKey bool) *Layer0Bundle {
	b := &Layer0Bundle{
		HashAlg:           hashAlg.String(),
		KeyAlg:            keyAlg,
		DeviceIDPublicKey: clone(out.DeviceIDPublicKey),
		AliasKeyPublicKey: clone(out.AliasKeyPublicKey),
		DeviceIDCSR:       clone(out.DeviceIDCSR),
		AliasKeyCRT:       clone(out.AliasKeyCRT),
	}
	if withPrivateKey {
		b.AliasKeyPrivateKey = clone(out.AliasKeyPrivateKey)
	}
	return b
}

// Wipe overwrites the private key copy, if any.
func (b *Layer0Bundle) Wipe() {
	cryptoutils.Zeroize(b.AliasKeyPrivateKey)
}

func clone(b []byte) hexutil.Bytes {
	if b == nil {
		return nil
	}
	return append(hexutil.Bytes(nil), b...)
}

// VerifyRequest carries a DeviceID CSR and AliasKey certificate, each DER or
// PEM encoded.
type VerifyRequest struct {
	DeviceIDCSR hexutil.Bytes `json:"device_id_csr" cbor:"1,keyasint"`
	AliasKeyCRT hexutil.Bytes `json:"alias_key_crt" cbor:"2,keyasint"`
}

// VerifyResponse describes a verified chain, or why it did not verify.
type VerifyResponse struct {
	Valid bool   `json:"valid" cbor:"1,keyasint"`
	Error string `json:"error,omitempty" cbor:"2,keyasint,omitempty"`

	DeviceIDSubject     string        `json:"device_id_subject,omitempty" cbor:"3,keyasint,omitempty"`
	DeviceIDFingerprint string        `json:"device_id_fingerprint,omitempty" cbor:"4,keyasint,omitempty"`
	AliasKeySubject     string        `json:"alias_key_subject,omitempty" cbor:"5,keyasint,omitempty"`
	AliasKeyFingerprint string        `json:"alias_key_fingerprint,omitempty" cbor:"6,keyasint,omitempty"`
	L0Version           int           `json:"l0_version,omitempty" cbor:"7,keyasint,omitempty"`
	FWIDHashAlg         string        `json:"fwid_hash_alg,omitempty" cbor:"8,keyasint,omitempty"`
	FWID                hexutil.Bytes `json:"fwid,omitempty" cbor:"9,keyasint,omitempty"`
	Vendor              string        `json:"vendor,omitempty" cbor:"10,keyasint,omitempty"`
	Model               string        `json:"model,omitempty" cbor:"11,keyasint,omitempty"`
	SVN                 int           `json:"svn,omitempty" cbor:"12,keyasint,omitempty"`
	NotBefore           *time.Time    `json:"not_before,omitempty" cbor:"13,keyasint,omitempty"`
	NotAfter            *time.Time    `json:"not_after,omitempty" cbor:"14,keyasint,omitempty"`
}

type HashInfo struct {
	Name   string `json:"name" cbor:"1,keyasint"`
	ID     uint8  `json:"id" cbor:"2,keyasint"`
	Length uint32 `json:"length" cbor:"3,keyasint"`
}

type KeyInfo struct {
	Name       string `json:"name" cbor:"1,keyasint"`
	SeedLength int    `json:"seed_length" cbor:"2,keyasint"`
}

// AlgorithmsResponse lists the supported hash and key algorithms.
type AlgorithmsResponse struct {
	Hashes []HashInfo `json:"hashes" cbor:"1,keyasint"`
	Keys   []KeyInfo  `json:"keys" cbor:"2,keyasint"`
}
