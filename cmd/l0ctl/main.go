// Command l0ctl runs DICE Layer-0 derivations and verifies their output.
//
//	l0ctl derive --cdi 0x... --firmware next-layer.bin --out-dir ./out
//	l0ctl verify --csr out/deviceid_csr.pem --crt out/aliaskey_crt.pem
//	l0ctl algorithms
//	l0ctl profile > profile.yaml
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ruteri/dice-l0/api"
	"github.com/ruteri/dice-l0/cmd/flags"
	"github.com/ruteri/dice-l0/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "l0ctl",
		Usage: "Derive and verify DICE Layer-0 DeviceID and AliasKey identities",
		Flags: flags.LogFlags("l0ctl"),
		Commands: []*cli.Command{
			deriveCommand,
			verifyCommand,
			{
				Name:  "algorithms",
				Usage: "list supported hash and key algorithms",
				Action: func(cCtx *cli.Context) error {
					return writeJSON(cCtx.App.Writer, api.SupportedAlgorithms())
				},
			},
			{
				Name:  "profile",
				Usage: "print the default derivation profile",
				Action: func(cCtx *cli.Context) error {
					data, err := config.Default().Marshal()
					if err != nil {
						return err
					}
					_, err = cCtx.App.Writer.Write(data)
					return err
				},
			},
		},
	}
}

func loadProfile(cCtx *cli.Context) (*config.Profile, error) {
	path := cCtx.String(flags.ProfileFlag.Name)
	if path == "" {
		return config.Default(), nil
	}
	p, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", path, err)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
