package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/seal-session/cmd/flags"
	"github.com/ruteri/seal-session/common"
	"github.com/ruteri/seal-session/httpserver"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/keyserver"
	"github.com/ruteri/seal-session/kms"
	"github.com/ruteri/seal-session/metrics"
	"github.com/ruteri/seal-session/signer"
	"github.com/urfave/cli/v2"
)

var (
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	}
	masterKeyFlag = &cli.StringFlag{
		Name:    "master-key",
		Usage:   "hex-encoded 32-byte BLS12-381 master secret",
		EnvVars: []string{"SEAL_MASTER_KEY"},
	}
	masterKeyFileFlag = &cli.StringFlag{
		Name:  "master-key-file",
		Usage: "file holding the hex-encoded master secret",
	}
	policyFlag = &cli.StringFlag{
		Name:  "policy",
		Value: "eth-call",
		Usage: "access policy: 'eth-call' evaluates seal_approve on chain, 'static' approves every well-formed call",
	}
	allowedUsersFlag = &cli.StringSliceFlag{
		Name:  "allowed-user",
		Usage: "restrict the static policy to these addresses; repeatable",
	}
	rateLimitFlag = &cli.Float64Flag{
		Name:  "rate-limit",
		Value: 5,
		Usage: "sustained requests per second allowed per user, 0 disables limiting",
	}
	rateBurstFlag = &cli.IntFlag{
		Name:  "rate-burst",
		Value: 10,
		Usage: "request burst allowed per user",
	}
	shareFileFlag = &cli.StringSliceFlag{
		Name:  "share-file",
		Usage: "JSON file with an admin-signed master key share; repeatable, replaces --master-key",
	}
	shareAdminFlag = &cli.StringSliceFlag{
		Name:  "share-admin",
		Usage: "address allowed to submit a master key share; repeatable",
	}
	shareThresholdFlag = &cli.IntFlag{
		Name:  "share-threshold",
		Value: 2,
		Usage: "number of shares needed to reconstruct the master key",
	}
	masterPublicKeyFlag = &cli.StringFlag{
		Name:  "master-public-key",
		Usage: "hex-encoded expected master public key, checked after reconstruction",
	}
	sharesFlag = &cli.IntFlag{
		Name:  "shares",
		Usage: "split the generated master key into this many shares instead of printing it",
	}
	shareFlag = &cli.StringFlag{
		Name:     "share",
		Usage:    "hex-encoded share to sign",
		Required: true,
	}
	adminKeystoreFlag = &cli.StringFlag{
		Name:     "keystore",
		Usage:    "admin keystore file",
		Required: true,
	}
	adminKeystorePasswordFlag = &cli.StringFlag{
		Name:    "keystore-password",
		Usage:   "admin keystore password",
		EnvVars: []string{"SEAL_KEYSTORE_PASSWORD"},
	}
)

var serveFlags = append(append([]cli.Flag{
	listenAddrFlag,
	masterKeyFlag,
	masterKeyFileFlag,
	policyFlag,
	allowedUsersFlag,
	rateLimitFlag,
	rateBurstFlag,
	shareFileFlag,
	shareAdminFlag,
	shareThresholdFlag,
	masterPublicKeyFlag,
	flags.RpcAddrFlag,
	flags.LogServiceFlagFn("seal-keyserver"),
}, flags.LogFlags...), flags.ServerFlags...)

func main() {
	app := &cli.App{
		Name:  "seal-keyserver",
		Usage: "Serve session-authorized decryption keys",
		Flags: serveFlags,
		Commands: []*cli.Command{
			{
				Name:   "generate-key",
				Usage:  "Generate a master secret and print it, or its shares, with its public key",
				Flags:  []cli.Flag{sharesFlag, shareThresholdFlag},
				Action: generateKey,
			},
			{
				Name:   "sign-share",
				Usage:  "Sign a master key share with an admin keystore and print the share file",
				Flags:  []cli.Flag{shareFlag, adminKeystoreFlag, adminKeystorePasswordFlag},
				Action: signShare,
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func generateKey(cCtx *cli.Context) error {
	masterKey, err := keyserver.GenerateMasterKey()
	if err != nil {
		return err
	}
	defer clear(masterKey)
	extractor, err := keyserver.NewMasterKeyExtractor(masterKey)
	if err != nil {
		return err
	}

	w := cCtx.App.Writer
	fmt.Fprintf(w, "public_key: %s\n", hex.EncodeToString(extractor.PublicKey()))

	parts := cCtx.Int(sharesFlag.Name)
	if parts == 0 {
		fmt.Fprintf(w, "master_key: %s\n", hex.EncodeToString(masterKey))
		return nil
	}

	shares, err := kms.SplitMasterKey(masterKey, parts, cCtx.Int(shareThresholdFlag.Name))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "shares:")
	for _, share := range shares {
		fmt.Fprintf(w, "  - %s\n", hex.EncodeToString(share))
	}
	return nil
}

func signShare(cCtx *cli.Context) error {
	share, err := hex.DecodeString(strings.TrimPrefix(cCtx.String(shareFlag.Name), "0x"))
	if err != nil {
		return fmt.Errorf("invalid share: %w", err)
	}
	admin, err := signer.NewKeystoreSignerFromFile(cCtx.String(adminKeystoreFlag.Name), cCtx.String(adminKeystorePasswordFlag.Name))
	if err != nil {
		return err
	}
	signed, err := kms.SignShare(cCtx.Context, share, admin)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cCtx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(signed)
}

// loadExtractor builds the key extractor from --master-key(-file) or, when
// share files are given, from admin-signed Shamir shares.
func loadExtractor(cCtx *cli.Context, logger *slog.Logger) (*keyserver.MasterKeyExtractor, error) {
	shareFiles := cCtx.StringSlice(shareFileFlag.Name)
	if len(shareFiles) == 0 {
		masterKey, err := loadMasterKey(cCtx)
		if err != nil {
			return nil, err
		}
		defer clear(masterKey)
		return keyserver.NewMasterKeyExtractor(masterKey)
	}

	config := kms.ShamirConfig{Threshold: cCtx.Int(shareThresholdFlag.Name)}
	for _, raw := range cCtx.StringSlice(shareAdminFlag.Name) {
		addr, err := interfaces.NewAddressFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid share admin: %w", err)
		}
		config.Admins = append(config.Admins, addr)
	}
	if raw := cCtx.String(masterPublicKeyFlag.Name); raw != "" {
		mpk, err := keyserver.ParseMasterPublicKey(raw)
		if err != nil {
			return nil, err
		}
		config.MasterPublicKey = mpk
	}

	recovery, err := kms.NewShamirKMSRecovery(config)
	if err != nil {
		return nil, err
	}
	for _, path := range shareFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read share file: %w", err)
		}
		var signed kms.SignedShare
		err = json.Unmarshal(data, &signed)
		clear(data)
		if err != nil {
			return nil, fmt.Errorf("invalid share file %s: %w", path, err)
		}
		if err := recovery.SubmitShare(&signed); err != nil {
			return nil, fmt.Errorf("share file %s: %w", path, err)
		}
		logger.Info("Accepted master key share", "file", path, "received", recovery.Received(), "threshold", config.Threshold)
	}
	return recovery.Extractor()
}

func loadMasterKey(cCtx *cli.Context) ([]byte, error) {
	raw := cCtx.String(masterKeyFlag.Name)
	if path := cCtx.String(masterKeyFileFlag.Name); path != "" {
		if raw != "" {
			return nil, fmt.Errorf("--%s and --%s are mutually exclusive", masterKeyFlag.Name, masterKeyFileFlag.Name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read master key file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, fmt.Errorf("a master key is required, see --%s or the generate-key command", masterKeyFlag.Name)
	}
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid master key: %w", err)
	}
	return key, nil
}

func buildPolicy(cCtx *cli.Context, logger *slog.Logger) (keyserver.Policy, func(), error) {
	switch cCtx.String(policyFlag.Name) {
	case "static":
		policy := &keyserver.StaticPolicy{}
		for _, user := range cCtx.StringSlice(allowedUsersFlag.Name) {
			addr, err := interfaces.NewAddressFromHex(user)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid allowed user: %w", err)
			}
			if policy.AllowedUsers == nil {
				policy.AllowedUsers = make(map[interfaces.Address]bool)
			}
			policy.AllowedUsers[addr] = true
		}
		logger.Warn("Using static policy, no on-chain evaluation", "allowedUsers", len(policy.AllowedUsers))
		return policy, func() {}, nil

	case "eth-call":
		rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
		logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
		ethClient, err := ethclient.DialContext(cCtx.Context, rpcAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to dial RPC: %w", err)
		}
		return keyserver.NewEthCallPolicy(ethClient, logger), ethClient.Close, nil

	default:
		return nil, nil, fmt.Errorf("invalid policy: %s", cCtx.String(policyFlag.Name))
	}
}

func serve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	extractor, err := loadExtractor(cCtx, logger)
	if err != nil {
		logger.Error("Failed to load master key", "err", err)
		return err
	}
	logger.Info("Loaded master key", "publicKey", hex.EncodeToString(extractor.PublicKey()))

	policy, closePolicy, err := buildPolicy(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up policy", "err", err)
		return err
	}
	defer closePolicy()

	cfg, err := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))
	if err != nil {
		return err
	}

	var (
		metricsSrv     *metrics.MetricsServer
		serviceMetrics *keyserver.Metrics
	)
	if cfg.MetricsAddr != "" {
		metricsSrv, err = metrics.New(common.PackageName, cfg.MetricsAddr)
		if err != nil {
			return err
		}
		serviceMetrics, err = keyserver.NewMetrics(metricsSrv.Namespace(), metricsSrv.Registerer())
		if err != nil {
			return err
		}
	}

	service, err := keyserver.NewService(keyserver.ServiceConfig{
		Policy:    policy,
		Extractor: extractor,
		Limiter:   keyserver.NewUserLimiter(cCtx.Float64(rateLimitFlag.Name), cCtx.Int(rateBurstFlag.Name), 10*time.Minute),
		Metrics:   serviceMetrics,
		Log:       logger,
	})
	if err != nil {
		return err
	}

	server, err := httpserver.New(cfg, keyserver.NewHandler(service, logger), metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Server is running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// A second signal skips the drain period.
	drainCtx, cancelDrain := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	server.Drain(drainCtx)
	cancelDrain()

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
