package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/seal-session/interfaces"
)

// userRejectedCode is the EIP-1193 "user rejected request" error code.
const userRejectedCode = 4001

// RPCSigner asks an external wallet to sign through the JSON-RPC personal_sign method.
// Each call may block until the wallet holder approves or declines.
type RPCSigner struct {
	client  *rpc.Client
	address interfaces.Address
	log     *slog.Logger
}

// NewRPCSigner creates a signer for address backed by an established RPC client.
func NewRPCSigner(client *rpc.Client, address interfaces.Address, log *slog.Logger) *RPCSigner {
	return &RPCSigner{
		client:  client,
		address: address,
		log:     log,
	}
}

// DialRPCSigner connects to a wallet endpoint (http, ws or ipc) and returns a signer for address.
func DialRPCSigner(ctx context.Context, endpoint string, address interfaces.Address, log *slog.Logger) (*RPCSigner, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not dial wallet endpoint: %w", err)
	}
	return NewRPCSigner(client, address, log), nil
}

// Address returns the account the wallet is asked to sign for.
func (s *RPCSigner) Address() interfaces.Address {
	return s.address
}

// SignPersonalMessage requests a personal_sign signature from the wallet.
//
// A wallet refusal (EIP-1193 code 4001) is reported as ErrSigningRejected; ctx
// cancellation is returned as the context error; anything else wraps ErrSigningFailed.
func (s *RPCSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.log.Debug("Requesting personal_sign from wallet", "address", s.address.String(), "messageLen", len(message))

	var sig hexutil.Bytes
	err := s.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(message), common.Address(s.address))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
			s.log.Info("Wallet declined to sign", "address", s.address.String())
			return nil, fmt.Errorf("%w: %s", ErrSigningRejected, rpcErr.Error())
		}
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: wallet returned %d-byte signature", ErrSigningFailed, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return sig, nil
}

// Close releases the underlying RPC connection.
func (s *RPCSigner) Close() {
	s.client.Close()
}
