package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/ruteri/seal-session/cmd/flags"
	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/keyserver"
	"github.com/ruteri/seal-session/sessionkey"
	"github.com/ruteri/seal-session/storage"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	profileFlag = &cli.StringFlag{
		Name:    "profile",
		Value:   "sessionctl.yaml",
		Usage:   "YAML profile; flags override its values",
		EnvVars: []string{"SEAL_PROFILE"},
	}
	identityFlag = &cli.StringFlag{
		Name:  "identity",
		Usage: "wallet address the session acts for",
	}
	scopeFlag = &cli.StringFlag{
		Name:  "scope",
		Usage: "package address the session is scoped to",
	}
	ttlFlag = &cli.IntFlag{
		Name:  "ttl",
		Usage: fmt.Sprintf("session lifetime in minutes, %d to %d", sessionkey.MinTTLMinutes, sessionkey.MaxTTLMinutes),
	}
	signerFlag = &cli.StringFlag{
		Name:  "signer",
		Usage: "signer type: private-key, mnemonic, keystore or rpc",
	}
	keystorePasswordFlag = &cli.StringFlag{
		Name:    "keystore-password",
		Usage:   "password of the keystore signer",
		EnvVars: []string{"SEAL_KEYSTORE_PASSWORD"},
	}
	passphraseFileFlag = &cli.StringFlag{
		Name:  "passphrase-file",
		Usage: "file holding the passphrase sealing stored sessions (default: SEAL_PASSPHRASE)",
	}
	keyServerFlag = &cli.StringSliceFlag{
		Name:  "key-server",
		Usage: "key server base URL; repeatable",
	}
	keyIDFlag = &cli.StringSliceFlag{
		Name:     "key-id",
		Usage:    "hex-encoded 32-byte key id to request; repeatable",
		Required: true,
	}
	requirePinnedFlag = &cli.BoolFlag{
		Name:  "require-pinned",
		Usage: "refuse key servers without a pinned public key in the profile",
	}
	signatureFlag = &cli.StringFlag{
		Name:  "signature",
		Usage: "0x-hex personal_sign signature over the attestation message, produced elsewhere",
	}
)

func main() {
	app := &cli.App{
		Name:  "sessionctl",
		Usage: "Create, certify and use session keys for key-server decryption",
		Flags: append([]cli.Flag{
			profileFlag,
			identityFlag,
			scopeFlag,
			signerFlag,
			keystorePasswordFlag,
			passphraseFileFlag,
			flags.StorageFlag,
			flags.LogServiceFlagFn("sessionctl"),
		}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "save-profile",
				Usage: "Write the effective configuration to the profile file",
				Action: func(cCtx *cli.Context) error {
					profile, err := effectiveProfile(cCtx)
					if err != nil {
						return err
					}
					return profile.Save(cCtx.String(profileFlag.Name))
				},
			},
			{
				Name:   "new",
				Usage:  "Create a session and store it; certifies it when a signer is configured",
				Flags:  []cli.Flag{ttlFlag},
				Action: withEnv(cmdNew),
			},
			{
				Name:   "message",
				Usage:  "Print the attestation message of the stored session",
				Action: withEnv(cmdMessage),
			},
			{
				Name:   "certify",
				Usage:  "Attach the identity's attestation signature to the stored session",
				Flags:  []cli.Flag{signatureFlag},
				Action: withEnv(cmdCertify),
			},
			{
				Name:   "request",
				Usage:  "Request keys from the key servers and print them",
				Flags:  []cli.Flag{keyServerFlag, keyIDFlag, requirePinnedFlag},
				Action: withEnv(cmdRequest),
			},
			{
				Name:   "show",
				Usage:  "Print the stored session's public state",
				Action: withEnv(cmdShow),
			},
			{
				Name:   "delete",
				Usage:  "Delete the stored session",
				Action: withEnv(cmdDelete),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// env is the state shared by all commands.
type env struct {
	log              *slog.Logger
	profile          *Profile
	store            *storage.SessionStore
	passphrase       []byte
	keystorePassword string
}

func withEnv(fn func(*cli.Context, *env) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		e, err := setup(cCtx)
		if err != nil {
			return err
		}
		defer clear(e.passphrase)
		return fn(cCtx, e)
	}
}

// effectiveProfile loads the profile file and applies flag overrides.
func effectiveProfile(cCtx *cli.Context) (*Profile, error) {
	profile, err := LoadProfile(cCtx.String(profileFlag.Name))
	if err != nil {
		return nil, err
	}
	if v := cCtx.String(identityFlag.Name); v != "" {
		profile.Identity = v
	}
	if v := cCtx.String(scopeFlag.Name); v != "" {
		profile.Scope = v
	}
	if v := cCtx.String(signerFlag.Name); v != "" {
		profile.Signer.Type = v
	}
	if v := cCtx.Int(ttlFlag.Name); v != 0 {
		profile.TTLMinutes = v
	}
	if v := cCtx.StringSlice(flags.StorageFlag.Name); len(v) > 0 {
		profile.Storage = v
	}
	if v := cCtx.StringSlice(keyServerFlag.Name); len(v) > 0 {
		profile.KeyServers = v
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func setup(cCtx *cli.Context) (*env, error) {
	logger := flags.SetupLogger(cCtx)

	profile, err := effectiveProfile(cCtx)
	if err != nil {
		return nil, err
	}
	if len(profile.Storage) == 0 {
		return nil, fmt.Errorf("no storage configured, set --%s or the profile's storage list", flags.StorageFlag.Name)
	}

	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(profile.Storage)
	if err != nil {
		return nil, err
	}

	passphrase, err := readPassphrase(cCtx.String(passphraseFileFlag.Name))
	if err != nil {
		return nil, err
	}

	return &env{
		log:              logger,
		profile:          profile,
		store:            storage.NewSessionStore(backend, logger),
		passphrase:       passphrase,
		keystorePassword: cCtx.String(keystorePasswordFlag.Name),
	}, nil
}

func readPassphrase(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read passphrase file: %w", err)
		}
		return []byte(strings.TrimRight(string(data), "\r\n")), nil
	}
	if v := os.Getenv("SEAL_PASSPHRASE"); v != "" {
		return []byte(v), nil
	}
	return nil, errors.New("a passphrase is required, set --passphrase-file or SEAL_PASSPHRASE")
}

func (e *env) sessionID() (interfaces.SessionID, error) {
	identity, err := interfaces.NewAddressFromHex(e.profile.Identity)
	if err != nil {
		return "", fmt.Errorf("invalid identity: %w", err)
	}
	scope, err := interfaces.NewAddressFromHex(e.profile.Scope)
	if err != nil {
		return "", fmt.Errorf("invalid scope: %w", err)
	}
	return interfaces.NewSessionID(identity, scope), nil
}

// load restores the stored session, attaching the configured signer if any.
func (e *env) load(ctx context.Context) (*sessionkey.SessionKey, func(), error) {
	id, err := e.sessionID()
	if err != nil {
		return nil, nil, err
	}

	s, closeSigner, err := buildSigner(ctx, e.profile, e.keystorePassword, e.log)
	if err != nil {
		return nil, nil, err
	}

	opts := []sessionkey.Option{sessionkey.WithLogger(e.log)}
	if s != nil {
		opts = append(opts, sessionkey.WithSigner(s))
	}
	sk, err := e.store.Load(ctx, id, e.passphrase, opts...)
	if err != nil {
		closeSigner()
		return nil, nil, err
	}
	return sk, closeSigner, nil
}

func (e *env) save(ctx context.Context, sk *sessionkey.SessionKey) (interfaces.SessionID, error) {
	export := sk.Export()
	defer export.Release()
	return e.store.Save(ctx, export, e.passphrase)
}

func cmdNew(cCtx *cli.Context, e *env) error {
	ctx := cCtx.Context

	s, closeSigner, err := buildSigner(ctx, e.profile, e.keystorePassword, e.log)
	if err != nil {
		return err
	}
	defer closeSigner()

	identity := e.profile.Identity
	if identity == "" && s != nil {
		identity = s.Address().String()
		e.profile.Identity = identity
	}

	opts := []sessionkey.Option{sessionkey.WithLogger(e.log)}
	if s != nil {
		opts = append(opts, sessionkey.WithSigner(s))
	}
	sk, err := sessionkey.New(identity, e.profile.Scope, e.profile.TTL(), opts...)
	if err != nil {
		return err
	}

	if s != nil {
		if _, err := sk.GetCertificate(ctx); err != nil {
			return err
		}
	}

	id, err := e.save(ctx, sk)
	if err != nil {
		return err
	}

	w := cCtx.App.Writer
	fmt.Fprintf(w, "session: %s\nexpires: %s\n", id, sk.ExpiresAt().UTC().Format(time.RFC3339))
	if !sk.HasAttestation() {
		fmt.Fprintf(w, "sign this message with %s, then run 'sessionctl certify --signature 0x...':\n%s\n", sk.Address(), sk.AttestationMessage())
	}
	return nil
}

func cmdMessage(cCtx *cli.Context, e *env) error {
	sk, closeSigner, err := e.load(cCtx.Context)
	if err != nil {
		return err
	}
	defer closeSigner()

	fmt.Fprintln(cCtx.App.Writer, string(sk.AttestationMessage()))
	return nil
}

func cmdCertify(cCtx *cli.Context, e *env) error {
	ctx := cCtx.Context
	sk, closeSigner, err := e.load(ctx)
	if err != nil {
		return err
	}
	defer closeSigner()

	if raw := cCtx.String(signatureFlag.Name); raw != "" {
		sig, err := hexutil.Decode(raw)
		if err != nil {
			return fmt.Errorf("invalid signature: %w", err)
		}
		if err := sk.SetAttestationSignature(sig); err != nil {
			return err
		}
	} else if _, err := sk.GetCertificate(ctx); err != nil {
		return err
	}

	if _, err := e.save(ctx, sk); err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, "certified")
	return nil
}

// serverKeys is the per-server output of the request command.
type serverKeys struct {
	Server string                   `json:"server"`
	Keys   map[string]hexutil.Bytes `json:"keys,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func parseKeyIDs(raw []string) ([][keyserver.KeyIDLength]byte, error) {
	ids := make([][keyserver.KeyIDLength]byte, 0, len(raw))
	for _, r := range raw {
		b, err := hex.DecodeString(strings.TrimPrefix(r, "0x"))
		if err != nil || len(b) != keyserver.KeyIDLength {
			return nil, fmt.Errorf("invalid key id %q: expected %d hex-encoded bytes", r, keyserver.KeyIDLength)
		}
		var id [keyserver.KeyIDLength]byte
		copy(id[:], b)
		ids = append(ids, id)
	}
	return ids, nil
}

func cmdRequest(cCtx *cli.Context, e *env) error {
	ctx := cCtx.Context
	if len(e.profile.KeyServers) == 0 {
		return fmt.Errorf("no key servers configured, set --%s or the profile's key_servers list", keyServerFlag.Name)
	}

	keyIDs, err := parseKeyIDs(cCtx.StringSlice(keyIDFlag.Name))
	if err != nil {
		return err
	}

	sk, closeSigner, err := e.load(ctx)
	if err != nil {
		return err
	}
	defer closeSigner()

	wasCertified := sk.HasAttestation()
	cert, err := sk.GetCertificate(ctx)
	if err != nil {
		return err
	}
	if !wasCertified {
		if _, err := e.save(ctx, sk); err != nil {
			return err
		}
	}

	calls := make([]keyserver.Call, 0, len(keyIDs))
	for _, id := range keyIDs {
		calls = append(calls, keyserver.SealApproveCall(sk.PackageID(), id))
	}
	payload, err := keyserver.BuildPayload(calls...)
	if err != nil {
		return err
	}

	params, err := sk.CreateRequestParams(payload)
	if err != nil {
		return err
	}
	defer params.Release()
	req := params.FetchKeyRequest(cert)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	results := make([]serverKeys, 0, len(e.profile.KeyServers))
	for _, server := range e.profile.KeyServers {
		pinned, err := e.profile.PinnedPublicKey(server)
		if err != nil {
			return err
		}
		if pinned == nil {
			if cCtx.Bool(requirePinnedFlag.Name) {
				return fmt.Errorf("key server %s has no pinned public key", server)
			}
			e.log.Warn("Key server public key is not pinned, trusting the advertised key", "server", server)
		}
		results = append(results, fetchFrom(ctx, keyserver.NewClient(server, httpClient, e.log), server, pinned, req, params))
	}

	enc := json.NewEncoder(cCtx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// fetchFrom requests keys from one server. Keys are verified against pinned
// when set, otherwise against the public key the server advertises.
func fetchFrom(ctx context.Context, client *keyserver.Client, server string, pinned []byte, req *interfaces.FetchKeyRequest, params *sessionkey.RequestParams) serverKeys {
	out := serverKeys{Server: server}

	mpk := pinned
	if mpk == nil {
		advertised, err := client.PublicKey(ctx)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		mpk = advertised
	}
	resp, err := client.FetchKeys(ctx, req, uuid.NewString())
	if err != nil {
		out.Error = err.Error()
		return out
	}
	keys, err := keyserver.DecryptKeys(params.Ephemeral, resp, mpk)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Keys = make(map[string]hexutil.Bytes, len(keys))
	for id, key := range keys {
		out.Keys[id] = key
	}
	return out
}

// sessionInfo is the public state printed by the show command.
type sessionInfo struct {
	ID                     string `yaml:"id"`
	Identity               string `yaml:"identity"`
	Scope                  string `yaml:"scope"`
	Created                string `yaml:"created"`
	Expires                string `yaml:"expires"`
	Expired                bool   `yaml:"expired"`
	Certified              bool   `yaml:"certified"`
	SessionVerificationKey string `yaml:"session_verification_key"`
}

func cmdShow(cCtx *cli.Context, e *env) error {
	id, err := e.sessionID()
	if err != nil {
		return err
	}
	sk, err := e.store.Load(cCtx.Context, id, e.passphrase, sessionkey.WithLogger(e.log))
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(sessionInfo{
		ID:                     string(id),
		Identity:               sk.Address().String(),
		Scope:                  sk.PackageID().String(),
		Created:                sk.CreatedAt().UTC().Format(time.RFC3339),
		Expires:                sk.ExpiresAt().UTC().Format(time.RFC3339),
		Expired:                sk.IsExpired(),
		Certified:              sk.HasAttestation(),
		SessionVerificationKey: hexutil.Encode(sk.SessionVerificationKey()),
	})
	if err != nil {
		return err
	}
	_, err = cCtx.App.Writer.Write(out)
	return err
}

func cmdDelete(cCtx *cli.Context, e *env) error {
	id, err := e.sessionID()
	if err != nil {
		return err
	}
	if err := e.store.Delete(cCtx.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "deleted %s\n", id)
	return nil
}
