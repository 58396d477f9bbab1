// Package flags holds command-line flags and helpers shared by the binaries.
package flags

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/seal-session/api"
	"github.com/ruteri/seal-session/common"
	"github.com/ruteri/seal-session/cryptoutils"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlagName)

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

// ConfigureServer builds the HTTP server config from the common flags. TLS is
// enabled by --tls-cert/--tls-key or --tls-self-signed.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) (*api.HTTPServerConfig, error) {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	cfg := &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	certFile, keyFile := cCtx.String(TLSCertFlag.Name), cCtx.String(TLSKeyFlag.Name)
	switch {
	case certFile != "" || keyFile != "":
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("--%s and --%s must be set together", TLSCertFlag.Name, TLSKeyFlag.Name)
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("could not load TLS key pair: %w", err)
		}
		cfg.TLSCertificate = &cert
	case cCtx.Bool(TLSSelfSignedFlag.Name):
		host, _, _ := strings.Cut(listenAddr, ":")
		hosts := []string{"localhost"}
		if host != "" && host != "localhost" {
			hosts = append(hosts, host)
		}
		cert, err := cryptoutils.SelfSignedCertificate(hosts, 30*24*time.Hour)
		if err != nil {
			return nil, err
		}
		logger.Warn("Serving with a self-signed TLS certificate", "hosts", hosts)
		cfg.TLSCertificate = &cert
	}

	return cfg, nil
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC",
	EnvVars: []string{"SEAL_RPC_ADDR"},
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	Usage:   "storage backend URI for sealed sessions (file://, s3://, vault://); repeat for redundancy",
	EnvVars: []string{"SEAL_STORAGE"},
}

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

const LogServiceFlagName = "log-service"

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  LogServiceFlagName,
		Value: service,
		Usage: "add 'service' tag to logs",
	}
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
	Usage: "address to listen on for Prometheus metrics, empty to disable",
}
var TLSCertFlag = &cli.StringFlag{
	Name:  "tls-cert",
	Usage: "PEM certificate file for serving HTTPS",
}
var TLSKeyFlag = &cli.StringFlag{
	Name:  "tls-key",
	Usage: "PEM private key file for serving HTTPS",
}
var TLSSelfSignedFlag = &cli.BoolFlag{
	Name:  "tls-self-signed",
	Usage: "serve HTTPS with a generated self-signed certificate",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	TLSCertFlag,
	TLSKeyFlag,
	TLSSelfSignedFlag,
}
