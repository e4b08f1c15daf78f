package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/dice-l0/api"
	"github.com/ruteri/dice-l0/certencoder"
	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/urfave/cli/v2"
)

var errChainInvalid = errors.New("chain verification failed")

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "check that a DeviceID CSR and an AliasKey certificate form a Layer-0 chain",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "csr", Required: true, Usage: "DeviceID CSR, PEM or DER"},
		&cli.StringFlag{Name: "crt", Required: true, Usage: "AliasKey certificate, PEM or DER"},
	},
	Action: verify,
}

func verify(cCtx *cli.Context) error {
	csr, err := readFile(cCtx.String("csr"), cryptoutils.ParseDeviceIDCSR)
	if err != nil {
		return err
	}
	crt, err := readFile(cCtx.String("crt"), cryptoutils.ParseAliasKeyCert)
	if err != nil {
		return err
	}

	info, err := certencoder.VerifyChain(csr.DER(), crt.DER())
	if err != nil {
		if werr := writeJSON(cCtx.App.Writer, api.InvalidVerifyResponse(err)); werr != nil {
			return werr
		}
		return errChainInvalid
	}
	return writeJSON(cCtx.App.Writer, api.NewVerifyResponse(info))
}

func readFile[T any](path string, parse func([]byte) (T, error)) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	v, err := parse(data)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
