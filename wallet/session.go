// Package wallet defines the signing and transaction capability that
// orchestration code borrows from a user's wallet. The session is the only
// shared mutable resource in a flow: whoever holds it owns the current chain
// context, and a chain switch is always an explicit awaited call.
package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vitwit/usdcflow/types"
)

// Session is a connected wallet. Implementations may block on human
// approval for SignTypedData and SendTransaction; callers must not assume
// a bounded wait.
type Session interface {
	Address() common.Address
	ChainID() types.ChainID
	// SwitchChain returns once the session is attached to chain.
	SwitchChain(ctx context.Context, chain types.ChainID) error
	// SignTypedData returns a 65-byte R||S||V signature.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	// SendTransaction submits a zero-value call on the current chain.
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// EnsureChain switches s to chain unless it is already there.
func EnsureChain(ctx context.Context, s Session, chain types.ChainID) error {
	if s.ChainID() == chain {
		return nil
	}
	if err := s.SwitchChain(ctx, chain); err != nil {
		return types.Classify(err, chain, types.ErrCodeChainMismatch, "switch chain")
	}
	if got := s.ChainID(); got != chain {
		return types.NewError(types.ErrCodeChainMismatch, chain, "wallet is on chain %d after switching to %d", got, chain)
	}
	return nil
}

// SendAndWait submits a transaction, waits for it to be mined and checks
// its status. op names the call in errors.
func SendAndWait(ctx context.Context, s Session, to common.Address, data []byte, op string) (*ethtypes.Receipt, error) {
	chain := s.ChainID()

	hash, err := s.SendTransaction(ctx, to, data)
	if err != nil {
		return nil, classifySend(err, chain, op)
	}

	receipt, err := s.WaitMined(ctx, hash)
	if err != nil {
		return nil, types.Classify(err, chain, types.ErrCodeNetworkTransient, op+" receipt")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, types.NewError(types.ErrCodeOnChainRevert, chain, "%s reverted in tx %s", op, hash.Hex())
	}
	return receipt, nil
}

// classifySend handles failures before broadcast. Nothing was mined, so
// only revert data from gas estimation counts as a revert.
func classifySend(err error, chain types.ChainID, op string) error {
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return types.WrapError(types.ErrCodeInsufficientBalance, chain, err, "%s: not enough native token for gas", op)
	}
	return types.Classify(err, chain, types.ErrCodeNetworkTransient, op)
}
