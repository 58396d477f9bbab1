package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/seal-session/interfaces"
	"github.com/ruteri/seal-session/signer"
)

// buildSigner returns nil when no signer is configured. The returned close
// function is always safe to call.
func buildSigner(ctx context.Context, p *Profile, keystorePassword string, log *slog.Logger) (interfaces.Signer, func(), error) {
	noop := func() {}

	switch p.Signer.Type {
	case "":
		return nil, noop, nil

	case "private-key":
		key := os.Getenv("SEAL_PRIVATE_KEY")
		if p.Signer.KeyFile != "" {
			data, err := os.ReadFile(p.Signer.KeyFile)
			if err != nil {
				return nil, noop, fmt.Errorf("could not read key file: %w", err)
			}
			key = string(data)
		}
		if key == "" {
			return nil, noop, fmt.Errorf("private-key signer needs key_file or SEAL_PRIVATE_KEY")
		}
		s, err := signer.NewPrivateKeySignerFromHex(key)
		return s, noop, err

	case "mnemonic":
		mnemonic := os.Getenv("SEAL_MNEMONIC")
		if p.Signer.MnemonicFile != "" {
			data, err := os.ReadFile(p.Signer.MnemonicFile)
			if err != nil {
				return nil, noop, fmt.Errorf("could not read mnemonic file: %w", err)
			}
			mnemonic = string(data)
		}
		if strings.TrimSpace(mnemonic) == "" {
			return nil, noop, fmt.Errorf("mnemonic signer needs mnemonic_file or SEAL_MNEMONIC")
		}
		s, err := signer.NewMnemonicSigner(mnemonic, "")
		return s, noop, err

	case "keystore":
		if p.Signer.KeystoreFile == "" {
			return nil, noop, fmt.Errorf("keystore signer needs keystore_file")
		}
		s, err := signer.NewKeystoreSignerFromFile(p.Signer.KeystoreFile, keystorePassword)
		return s, noop, err

	case "rpc":
		if p.Signer.RPCURL == "" {
			return nil, noop, fmt.Errorf("rpc signer needs rpc_url")
		}
		identity, err := interfaces.NewAddressFromHex(p.Identity)
		if err != nil {
			return nil, noop, fmt.Errorf("rpc signer needs the identity address: %w", err)
		}
		s, err := signer.DialRPCSigner(ctx, p.Signer.RPCURL, identity, log)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown signer type %q", p.Signer.Type)
	}
}
