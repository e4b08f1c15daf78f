package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/dice-l0/api"
	"github.com/ruteri/dice-l0/cmd/flags"
	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/digest"
	"github.com/ruteri/dice-l0/interfaces"
	"github.com/ruteri/dice-l0/keyengine"
	"github.com/urfave/cli/v2"
)

// Files written by derive --out-dir.
const (
	deviceIDCSRFile  = "deviceid_csr.pem"
	deviceIDPubFile  = "deviceid_pub.pem"
	aliasKeyCRTFile  = "aliaskey_crt.pem"
	aliasKeyPubFile  = "aliaskey_pub.pem"
	aliasKeyPrivFile = "aliaskey_key.pem"
)

const (
	formatJSON        = "json"
	formatCBOR        = "cbor"
	privateKeyFlagKey = "private-key"
)

var deriveCommand = &cli.Command{
	Name:  "derive",
	Usage: "derive DeviceID and AliasKey from a CDI and a firmware measurement",
	Flags: []cli.Flag{
		flags.ProfileFlag,
		&cli.StringFlag{Name: "cdi", Usage: "CDI as 0x-prefixed hex"},
		&cli.StringFlag{Name: "cdi-file", Usage: "file holding the raw CDI bytes"},
		&cli.StringFlag{Name: "fwid", Usage: "FWID (digest of the next layer) as 0x-prefixed hex"},
		&cli.StringFlag{Name: "firmware", Usage: "next layer image, measured with the profile's hash"},
		&cli.StringFlag{Name: "out-dir", Usage: "write PEM files here instead of printing a bundle"},
		&cli.StringFlag{Name: "format", Value: formatJSON, Usage: "bundle format on stdout: json or cbor"},
		&cli.BoolFlag{Name: privateKeyFlagKey, Usage: "also output the AliasKey private key"},
	},
	Action: derive,
}

func derive(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	profile, err := loadProfile(cCtx)
	if err != nil {
		return err
	}
	engine, err := profile.Engine(logger)
	if err != nil {
		return err
	}

	cdi, err := readCDI(cCtx)
	if err != nil {
		return err
	}
	defer cryptoutils.Zeroize(cdi)

	fwid, err := readFWID(cCtx, engine.HashAlg())
	if err != nil {
		return err
	}

	deviceIDLabel, aliasKeyLabel, err := profile.DerivationLabels()
	if err != nil {
		return err
	}
	csrIngredients, err := profile.DeviceIDIngredients()
	if err != nil {
		return err
	}
	crtIngredients, err := profile.AliasKeyIngredients()
	if err != nil {
		return err
	}

	out, err := engine.DeriveLayer0(cdi, fwid, deviceIDLabel, aliasKeyLabel, csrIngredients, crtIngredients)
	if err != nil {
		return fmt.Errorf("layer 0 derivation failed: %w", err)
	}
	defer out.Wipe()

	logger.Info("Layer 0 derived",
		"hash", engine.HashAlg().String(),
		"key", engine.Keys().Name(),
		"deviceID", cryptoutils.Fingerprint(out.DeviceIDPublicKey),
		"aliasKey", cryptoutils.Fingerprint(out.AliasKeyPublicKey))

	withPrivateKey := cCtx.Bool(privateKeyFlagKey)
	if dir := cCtx.String("out-dir"); dir != "" {
		return writeFiles(dir, engine.Keys(), out, withPrivateKey)
	}

	bundle := api.NewLayer0Bundle(out, engine.HashAlg(), engine.Keys().Name(), withPrivateKey)
	defer bundle.Wipe()

	switch format := cCtx.String("format"); format {
	case formatJSON:
		return writeJSON(cCtx.App.Writer, bundle)
	case formatCBOR:
		data, err := api.MarshalCBOR(bundle)
		if err != nil {
			return err
		}
		defer cryptoutils.Zeroize(data)
		_, err = cCtx.App.Writer.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func readCDI(cCtx *cli.Context) ([]byte, error) {
	hexCDI, path := cCtx.String("cdi"), cCtx.String("cdi-file")
	switch {
	case hexCDI != "" && path != "":
		return nil, errors.New("--cdi and --cdi-file are mutually exclusive")
	case hexCDI != "":
		cdi, err := hexutil.Decode(hexCDI)
		if err != nil {
			return nil, fmt.Errorf("invalid --cdi: %w", err)
		}
		return cdi, nil
	case path != "":
		return os.ReadFile(path)
	default:
		return nil, errors.New("one of --cdi or --cdi-file is required")
	}
}

func readFWID(cCtx *cli.Context, alg interfaces.HashAlg) ([]byte, error) {
	hexFWID, path := cCtx.String("fwid"), cCtx.String("firmware")
	switch {
	case hexFWID != "" && path != "":
		return nil, errors.New("--fwid and --firmware are mutually exclusive")
	case hexFWID != "":
		fwid, err := hexutil.Decode(hexFWID)
		if err != nil {
			return nil, fmt.Errorf("invalid --fwid: %w", err)
		}
		return fwid, nil
	case path != "":
		return measure(path, alg)
	default:
		return nil, errors.New("one of --fwid or --firmware is required")
	}
}

// measure streams the image at path through alg.
func measure(path string, alg interfaces.HashAlg) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := digest.Default().New(alg)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to measure %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

func writeFiles(dir string, keys interfaces.KeyEngine, out *interfaces.Layer0Output, withPrivateKey bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	deviceIDPub, err := publicKeyPEM(keys, out.DeviceIDPublicKey)
	if err != nil {
		return err
	}
	aliasKeyPub, err := publicKeyPEM(keys, out.AliasKeyPublicKey)
	if err != nil {
		return err
	}

	files := map[string][]byte{
		deviceIDCSRFile: cryptoutils.DeviceIDCSRFromDER(out.DeviceIDCSR),
		deviceIDPubFile: deviceIDPub,
		aliasKeyCRTFile: cryptoutils.AliasKeyCertFromDER(out.AliasKeyCRT),
		aliasKeyPubFile: aliasKeyPub,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}

	if !withPrivateKey {
		return nil
	}

	priv, err := keyengine.ExportPrivateKey(keys, out.AliasKeyPrivateKey)
	if err != nil {
		return err
	}
	defer wipePrivateKey(priv)

	privPEM, err := cryptoutils.PrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	defer cryptoutils.Zeroize(privPEM)

	return os.WriteFile(filepath.Join(dir, aliasKeyPrivFile), privPEM, 0o600)
}

func publicKeyPEM(keys interfaces.KeyEngine, raw []byte) ([]byte, error) {
	pub, err := keys.PublicKey(raw)
	if err != nil {
		return nil, err
	}
	return cryptoutils.PublicKeyPEM(pub)
}

func wipePrivateKey(priv crypto.PrivateKey) {
	switch k := priv.(type) {
	case ed25519.PrivateKey:
		cryptoutils.Zeroize(k)
	case *ecdsa.PrivateKey:
		cryptoutils.ZeroizeInt(k.D)
	}
}
