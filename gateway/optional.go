package gateway

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet"
)

// Optional is the result of a best-effort step. When OK is false the value
// is unknown and Err says why; callers decide whether that matters.
type Optional[T any] struct {
	Value T
	OK    bool
	Err   error
}

func present[T any](v T) Optional[T] { return Optional[T]{Value: v, OK: true} }

func absent[T any](err error) Optional[T] { return Optional[T]{Err: err} }

// readEscrowBalance reads the signer's Gateway escrow balance. The read is
// unsupported on some deployments, so a failure only means "unknown"; the
// attestation service does its own balance check.
func (o *Orchestrator) readEscrowBalance(ctx context.Context, caller clients.Caller, src types.ChainProfile, depositor common.Address) Optional[*big.Int] {
	if src.GatewayWallet == (common.Address{}) {
		return absent[*big.Int](types.NewError(types.ErrCodeUnconfiguredAddress, src.ChainID, "no GatewayWallet on %s", src.Name))
	}

	bal, err := clients.NewGatewayWallet(src.GatewayWallet, caller).AvailableBalance(ctx, src.USDC, depositor)
	if err != nil {
		o.logger.Warn("escrow balance unavailable, continuing without it", map[string]any{
			"chain": src.ChainID.String(),
			"error": err,
		})
		return absent[*big.Int](err)
	}
	return present(bal)
}

// attemptOptionalDeposit tops up the Gateway escrow with amount. Failures
// are logged and dropped because some escrow deployments differ and the
// transfer can still succeed. A user declining the prompt is the one
// exception and is returned.
func (o *Orchestrator) attemptOptionalDeposit(ctx context.Context, session wallet.Session, caller clients.Caller, src types.ChainProfile, amount *big.Int) error {
	err := o.deposit(ctx, session, caller, src, amount)
	if err == nil {
		return nil
	}
	if types.IsUserRejection(err) {
		return err
	}

	o.logger.Warn("escrow deposit failed, continuing", map[string]any{
		"chain":  src.ChainID.String(),
		"amount": amount.String(),
		"error":  err,
	})
	return nil
}

func (o *Orchestrator) deposit(ctx context.Context, session wallet.Session, caller clients.Caller, src types.ChainProfile, amount *big.Int) error {
	if src.GatewayWallet == (common.Address{}) {
		return types.NewError(types.ErrCodeUnconfiguredAddress, src.ChainID, "no GatewayWallet on %s", src.Name)
	}
	owner := session.Address()

	allowance, err := clients.NewERC20(src.USDC, caller).Allowance(ctx, owner, src.GatewayWallet)
	if err != nil {
		return types.Classify(err, src.ChainID, types.ErrCodeNetworkTransient, "read allowance")
	}

	if allowance.Cmp(amount) < 0 {
		data, err := clients.PackApprove(src.GatewayWallet, new(big.Int).Set(math.MaxBig256))
		if err != nil {
			return err
		}
		if _, err := wallet.SendAndWait(ctx, session, src.USDC, data, "approve GatewayWallet"); err != nil {
			return err
		}
	}

	data, err := clients.PackDeposit(src.USDC, amount)
	if err != nil {
		return err
	}
	receipt, err := wallet.SendAndWait(ctx, session, src.GatewayWallet, data, "deposit")
	if err != nil {
		return err
	}

	o.logger.Info("escrow deposit confirmed", map[string]any{
		"chain":  src.ChainID.String(),
		"amount": amount.String(),
		"tx":     receipt.TxHash.Hex(),
	})
	return nil
}
