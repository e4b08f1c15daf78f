package api

import (
	"github.com/ruteri/dice-l0/certencoder"
	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/digest"
	"github.com/ruteri/dice-l0/interfaces"
	"github.com/ruteri/dice-l0/keyengine"
)

// NewVerifyResponse summarises a verified chain.
func NewVerifyResponse(info *certencoder.ChainInfo) *VerifyResponse {
	cert := info.AliasKey.Certificate
	resp := &VerifyResponse{
		Valid:               true,
		DeviceIDSubject:     info.DeviceIDSubject.String(),
		DeviceIDFingerprint: cryptoutils.FingerprintKey(info.DeviceIDPublicKey),
		AliasKeySubject:     cert.Subject.String(),
		AliasKeyFingerprint: cryptoutils.FingerprintKey(info.AliasKeyPublicKey),
		L0Version:           info.AliasKey.L0Version,
		FWIDHashAlg:         info.AliasKey.FWIDHashAlg.String(),
		FWID:                info.AliasKey.FWID,
		NotBefore:           &cert.NotBefore,
		NotAfter:            &cert.NotAfter,
	}
	if tcb := info.AliasKey.TcbInfo; tcb != nil {
		resp.Vendor = tcb.Vendor
		resp.Model = tcb.Model
		resp.SVN = tcb.SVN
	}
	return resp
}

// InvalidVerifyResponse reports why a chain did not verify.
func InvalidVerifyResponse(err error) *VerifyResponse {
	return &VerifyResponse{Valid: false, Error: err.Error()}
}

// SupportedAlgorithms describes the hash and key algorithms Layer 0 can run
// with.
func SupportedAlgorithms() *AlgorithmsResponse {
	resp := &AlgorithmsResponse{}
	for _, alg := range interfaces.HashAlgs() {
		resp.Hashes = append(resp.Hashes, HashInfo{
			Name:   alg.String(),
			ID:     uint8(alg),
			Length: digest.Length(alg),
		})
	}
	for _, name := range keyengine.Names() {
		e, err := keyengine.ByName(name)
		if err != nil {
			continue
		}
		resp.Keys = append(resp.Keys, KeyInfo{Name: e.Name(), SeedLength: e.SeedLength()})
	}
	return resp
}
