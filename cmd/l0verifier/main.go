// Command l0verifier serves the Layer-0 chain verifier over HTTP.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/dice-l0/cmd/flags"
	"github.com/ruteri/dice-l0/httpserver"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "l0verifier",
		Usage:  "Verify DICE Layer-0 DeviceID CSR and AliasKey certificate chains over HTTP",
		Flags:  append(flags.LogFlags("l0verifier"), flags.ServerFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger)

	server, err := httpserver.New(cfg)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
