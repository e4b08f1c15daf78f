package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains all configuration parameters for the verifier
// HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// MaxBodySize caps verification request bodies. Zero means
	// DefaultMaxBodySize.
	MaxBodySize int64

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultMaxBodySize fits a CSR and certificate pair many times over.
const DefaultMaxBodySize = 64 * 1024
