package keyserver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/seal-session/interfaces"
)

// Policy decides which key ids of a bundle user may obtain.
type Policy interface {
	// ApprovedKeyIDs returns the full ids of the approved calls in bundle.
	// An error means the whole request is refused.
	ApprovedKeyIDs(ctx context.Context, user interfaces.Address, bundle *Bundle) ([][]byte, error)
}

// StaticPolicy approves every seal_approve call addressed to the bundle's
// package, optionally restricted to an allowlist of users. It performs no
// on-chain evaluation and suits local deployments and tests.
type StaticPolicy struct {
	// AllowedUsers restricts access when non-empty.
	AllowedUsers map[interfaces.Address]bool
}

// ApprovedKeyIDs implements Policy.
func (p *StaticPolicy) ApprovedKeyIDs(_ context.Context, user interfaces.Address, bundle *Bundle) ([][]byte, error) {
	if len(p.AllowedUsers) > 0 && !p.AllowedUsers[user] {
		return nil, fmt.Errorf("%w: user %s not allowed", ErrPolicyDenied, user)
	}

	pkg := bundle.Package()
	ids := make([][]byte, 0, len(bundle.Calls))
	for i, call := range bundle.Calls {
		if call.To != pkg {
			return nil, fmt.Errorf("%w: call %d targets %s, bundle package is %s", ErrInvalidBundle, i, call.To, pkg)
		}
		keyID, err := call.KeyID()
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		ids = append(ids, FullID(pkg, keyID))
	}
	return ids, nil
}

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// approvedResult is the ABI encoding of a true bool return value.
var approvedResult = common.LeftPadBytes([]byte{1}, 32)

// EthCallPolicy evaluates each seal_approve call with eth_call from the
// certificate user and approves the key ids whose call returns true.
// Calls that revert or return false are skipped.
type EthCallPolicy struct {
	caller ContractCaller
	log    *slog.Logger
}

// NewEthCallPolicy creates a policy backed by caller.
func NewEthCallPolicy(caller ContractCaller, log *slog.Logger) *EthCallPolicy {
	return &EthCallPolicy{caller: caller, log: log}
}

// ApprovedKeyIDs implements Policy.
func (p *EthCallPolicy) ApprovedKeyIDs(ctx context.Context, user interfaces.Address, bundle *Bundle) ([][]byte, error) {
	pkg := bundle.Package()
	ids := make([][]byte, 0, len(bundle.Calls))
	for i, call := range bundle.Calls {
		if call.To != pkg {
			return nil, fmt.Errorf("%w: call %d targets %s, bundle package is %s", ErrInvalidBundle, i, call.To, pkg)
		}
		keyID, err := call.KeyID()
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}

		to := common.Address(call.To)
		out, err := p.caller.CallContract(ctx, ethereum.CallMsg{
			From: common.Address(user),
			To:   &to,
			Data: call.Data,
		}, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Debug("seal_approve call failed", "call", i, "user", user.String(), "err", err)
			continue
		}
		if !bytes.Equal(out, approvedResult) {
			p.log.Debug("seal_approve returned false", "call", i, "user", user.String())
			continue
		}
		ids = append(ids, FullID(pkg, keyID))
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no call in the bundle was approved", ErrPolicyDenied)
	}
	return ids, nil
}
