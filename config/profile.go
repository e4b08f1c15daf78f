// Package config loads derivation profiles: the algorithm choice, the
// derivation labels and the certificate ingredient templates a device
// family uses for Layer 0.
//
// A profile is a YAML document:
//
//	hash: sha2-256
//	key: ed25519
//	labels:
//	  device_id: DeviceID
//	  alias_key: AliasKey
//	device_id:
//	  subject: {common_name: DeviceID, organization: Example Devices, country: US}
//	  key_usage: [digitalSignature, certSign]
//	alias_key:
//	  issuer: {common_name: DeviceID, organization: Example Devices, country: US}
//	  subject: {common_name: AliasKey, organization: Example Devices, country: US}
//	  not_before: 2024-01-01T00:00:00Z
//	  not_after: 2049-12-31T23:59:59Z
//	  l0_version: 1
//	  key_usage: [digitalSignature]
//	  ext_key_usage: [clientAuth]
//
// Labels and the serial number may be given as 0x-prefixed hex.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/dice-l0/certencoder"
	"github.com/ruteri/dice-l0/digest"
	"github.com/ruteri/dice-l0/interfaces"
	"github.com/ruteri/dice-l0/keyengine"
	"github.com/ruteri/dice-l0/l0"
	"gopkg.in/yaml.v3"
)

var ErrInvalidProfile = errors.New("invalid derivation profile")

type Labels struct {
	DeviceID string `yaml:"device_id"`
	AliasKey string `yaml:"alias_key"`
}

type Limits struct {
	MaxDeviceIDCSRLen int `yaml:"max_device_id_csr_len"`
	MaxAliasKeyCRTLen int `yaml:"max_alias_key_crt_len"`
}

type DeviceIDTemplate struct {
	Subject  interfaces.Name `yaml:"subject"`
	KeyUsage []string        `yaml:"key_usage"`
}

type AliasKeyTemplate struct {
	SerialNumber string          `yaml:"serial_number"`
	Issuer       interfaces.Name `yaml:"issuer"`
	Subject      interfaces.Name `yaml:"subject"`
	NotBefore    time.Time       `yaml:"not_before"`
	NotAfter     time.Time       `yaml:"not_after"`
	L0Version    int             `yaml:"l0_version"`
	KeyUsage     []string        `yaml:"key_usage"`
	ExtKeyUsage  []string        `yaml:"ext_key_usage"`
	Vendor       string          `yaml:"vendor"`
	Model        string          `yaml:"model"`
	SVN          int             `yaml:"svn"`
}

// Profile is a parsed derivation profile.
type Profile struct {
	Hash            string           `yaml:"hash"`
	Key             string           `yaml:"key"`
	CDILength       int              `yaml:"cdi_length"`
	AllowLabelReuse bool             `yaml:"allow_label_reuse"`
	Labels          Labels           `yaml:"labels"`
	Limits          Limits           `yaml:"limits"`
	DeviceID        DeviceIDTemplate `yaml:"device_id"`
	AliasKey        AliasKeyTemplate `yaml:"alias_key"`
}

// Default is the profile used when none is given.
func Default() *Profile {
	return &Profile{
		Hash:   interfaces.SHA2_256.String(),
		Key:    keyengine.NameEd25519,
		Labels: Labels{DeviceID: "DeviceID", AliasKey: "AliasKey"},
		DeviceID: DeviceIDTemplate{
			Subject:  interfaces.Name{CommonName: "DeviceID"},
			KeyUsage: []string{"digitalSignature", "certSign"},
		},
		AliasKey: AliasKeyTemplate{
			Issuer:      interfaces.Name{CommonName: "DeviceID"},
			Subject:     interfaces.Name{CommonName: "AliasKey"},
			NotBefore:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			NotAfter:    time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
			L0Version:   1,
			KeyUsage:    []string{"digitalSignature"},
			ExtKeyUsage: []string{"clientAuth"},
		},
	}
}

// Load reads and validates the profile at path.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a profile, rejecting unknown fields. Hash and key default
// to sha2-256 and ed25519.
func Parse(r io.Reader) (*Profile, error) {
	p := Profile{Hash: interfaces.SHA2_256.String(), Key: keyengine.NameEd25519}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes p as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks everything that can be checked without a CDI.
func (p *Profile) Validate() error {
	hashAlg, err := interfaces.ParseHashAlg(p.Hash)
	if err != nil {
		return fmt.Errorf("%w: hash: %w", ErrInvalidProfile, err)
	}
	keys, err := keyengine.ByName(p.Key)
	if err != nil {
		return fmt.Errorf("%w: key: %w", ErrInvalidProfile, err)
	}
	if seedLen := int(digest.Length(hashAlg)); seedLen != keys.SeedLength() {
		return fmt.Errorf("%w: %s yields %d-byte seeds, %s needs %d", ErrInvalidProfile, hashAlg, seedLen, keys.Name(), keys.SeedLength())
	}
	if p.CDILength < 0 {
		return fmt.Errorf("%w: negative cdi_length", ErrInvalidProfile)
	}
	deviceIDLabel, aliasKeyLabel, err := p.DerivationLabels()
	if err != nil {
		return err
	}
	if len(deviceIDLabel) == 0 || len(aliasKeyLabel) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, interfaces.ErrEmptyLabel)
	}
	if _, err := p.DeviceIDIngredients(); err != nil {
		return err
	}
	if _, err := p.AliasKeyIngredients(); err != nil {
		return err
	}
	return nil
}

// Engine builds the Layer-0 engine the profile describes.
func (p *Profile) Engine(log *slog.Logger) (*l0.Engine, error) {
	hashAlg, err := interfaces.ParseHashAlg(p.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %w", ErrInvalidProfile, err)
	}
	keys, err := keyengine.ByName(p.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrInvalidProfile, err)
	}

	return l0.NewEngine(l0.Config{
		HashAlg: &hashAlg,
		Keys:    keys,
		Encoder: certencoder.New(certencoder.Limits{
			MaxDeviceIDCSRLen: p.Limits.MaxDeviceIDCSRLen,
			MaxAliasKeyCRTLen: p.Limits.MaxAliasKeyCRTLen,
		}),
		CDILength:       p.CDILength,
		AllowLabelReuse: p.AllowLabelReuse,
		Log:             log,
	})
}

// DerivationLabels returns the DeviceID and AliasKey labels as bytes.
func (p *Profile) DerivationLabels() (deviceID, aliasKey []byte, err error) {
	deviceID, err = DecodeBytes(p.Labels.DeviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: labels.device_id: %w", ErrInvalidProfile, err)
	}
	aliasKey, err = DecodeBytes(p.Labels.AliasKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: labels.alias_key: %w", ErrInvalidProfile, err)
	}
	return deviceID, aliasKey, nil
}

func (p *Profile) DeviceIDIngredients() (interfaces.DeviceIDCSRIngredients, error) {
	ku, err := ParseKeyUsage(p.DeviceID.KeyUsage)
	if err != nil {
		return interfaces.DeviceIDCSRIngredients{}, fmt.Errorf("%w: device_id.key_usage: %w", ErrInvalidProfile, err)
	}
	return interfaces.DeviceIDCSRIngredients{
		Subject:  p.DeviceID.Subject,
		KeyUsage: ku,
	}, nil
}

func (p *Profile) AliasKeyIngredients() (interfaces.AliasKeyCRTIngredients, error) {
	t := p.AliasKey

	ku, err := ParseKeyUsage(t.KeyUsage)
	if err != nil {
		return interfaces.AliasKeyCRTIngredients{}, fmt.Errorf("%w: alias_key.key_usage: %w", ErrInvalidProfile, err)
	}
	eku, err := ParseExtKeyUsage(t.ExtKeyUsage)
	if err != nil {
		return interfaces.AliasKeyCRTIngredients{}, fmt.Errorf("%w: alias_key.ext_key_usage: %w", ErrInvalidProfile, err)
	}

	var serial []byte
	if t.SerialNumber != "" {
		serial, err = hexutil.Decode(t.SerialNumber)
		if err != nil {
			return interfaces.AliasKeyCRTIngredients{}, fmt.Errorf("%w: alias_key.serial_number: %w", ErrInvalidProfile, err)
		}
	}

	if t.NotBefore.IsZero() || !t.NotAfter.After(t.NotBefore) {
		return interfaces.AliasKeyCRTIngredients{}, fmt.Errorf("%w: alias_key validity %s - %s", ErrInvalidProfile, t.NotBefore, t.NotAfter)
	}

	return interfaces.AliasKeyCRTIngredients{
		SerialNumber: serial,
		Issuer:       t.Issuer,
		Subject:      t.Subject,
		NotBefore:    t.NotBefore,
		NotAfter:     t.NotAfter,
		L0Version:    t.L0Version,
		KeyUsage:     ku,
		ExtKeyUsage:  eku,
		Vendor:       t.Vendor,
		Model:        t.Model,
		SVN:          t.SVN,
	}, nil
}

// DecodeBytes reads s as 0x-prefixed hex, or as its UTF-8 bytes otherwise.
func DecodeBytes(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.Decode("0x" + s[2:])
	}
	return []byte(s), nil
}
