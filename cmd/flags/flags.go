// Package flags holds the command line flags shared by the l0ctl and
// l0verifier binaries, and the logger and server setup driven by them.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/dice-l0/api"
	"github.com/ruteri/dice-l0/common"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(logServiceFlagName)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
		Output:  cCtx.App.ErrWriter,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		MaxBodySize:              cCtx.Int64(MaxBodySizeFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

const logServiceFlagName = "log-service"

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  logServiceFlagName,
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var ProfileFlag = &cli.StringFlag{
	Name:    "profile",
	Aliases: []string{"p"},
	Usage:   "derivation profile (YAML); the built-in default profile is used when empty",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}
var MaxBodySizeFlag = &cli.Int64Flag{
	Name:  "max-body-size",
	Value: api.DefaultMaxBodySize,
	Usage: "maximum verification request size in bytes",
}

// LogFlags are accepted by every binary.
func LogFlags(service string) []cli.Flag {
	return []cli.Flag{
		LogJsonFlag,
		LogDebugFlag,
		LogUidFlag,
		LogServiceFlagFn(service),
	}
}

// ServerFlags configure the verifier HTTP service.
var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	MetricsAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MaxBodySizeFlag,
}
