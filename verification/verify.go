// Package verification reconciles a settled payment against its intent by
// reading the events its transaction emitted.
package verification

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/sku"
	"github.com/vitwit/usdcflow/types"
)

// ReceiptSource resolves a receipt reader per chain.
type ReceiptSource interface {
	Receipts(chain types.ChainID) (clients.ReceiptReader, error)
}

// Verifier interface defines the contract for payment verification
type Verifier interface {
	Verify(ctx context.Context, intent types.PaymentIntent, chain types.ChainID, txHash common.Hash) (*types.VerificationResult, error)
}

// VerificationService checks settled payments on chain.
type VerificationService struct {
	registry  *registry.Registry
	homeChain types.ChainID
	router    common.Address
	receipts  ReceiptSource
	timeout   time.Duration
}

// NewVerificationService creates a new verification service
func NewVerificationService(reg *registry.Registry, homeChain types.ChainID, router common.Address, receipts ReceiptSource, timeout time.Duration) *VerificationService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VerificationService{
		registry:  reg,
		homeChain: homeChain,
		router:    router,
		receipts:  receipts,
		timeout:   timeout,
	}
}

// Verify fetches the receipt of txHash and checks it paid intent. A
// mismatch is reported in the result; errors are reserved for failures to
// read the chain.
func (s *VerificationService) Verify(
	ctx context.Context,
	intent types.PaymentIntent,
	chain types.ChainID,
	txHash common.Hash,
) (*types.VerificationResult, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !s.registry.Supports(chain) {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, chain, "chain %d is not registered", chain)
	}
	reader, err := s.receipts.Receipts(chain)
	if err != nil {
		return nil, err
	}

	receipt, err := reader.TransactionReceipt(verifyCtx, txHash)
	if err != nil {
		return nil, types.Classify(err, chain, types.ErrCodeNetworkTransient, "fetch receipt")
	}

	return s.VerifyReceipt(intent, chain, receipt)
}

// VerifyReceipt checks receipt without touching the network. On the home
// chain it looks for the router's Payment event; elsewhere for a USDC
// Transfer to the creator.
func (s *VerificationService) VerifyReceipt(intent types.PaymentIntent, chain types.ChainID, receipt *ethtypes.Receipt) (*types.VerificationResult, error) {
	profile, err := s.registry.Profile(chain)
	if err != nil {
		return nil, err
	}

	result := &types.VerificationResult{TxHash: receipt.TxHash.Hex()}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return invalid(result, "transaction reverted"), nil
	}

	if !common.IsHexAddress(intent.CreatorAddress) {
		return invalid(result, fmt.Sprintf("creator address %q is malformed", intent.CreatorAddress)), nil
	}
	creator := common.HexToAddress(intent.CreatorAddress)

	amount, err := types.ToUSDCUnits(intent.AmountUSD)
	if err != nil {
		return nil, err
	}

	if chain == s.homeChain {
		if s.router == (common.Address{}) {
			return nil, types.NewError(types.ErrCodeUnconfiguredAddress, chain, "PayRouter address is not configured")
		}
		expected, err := sku.ForIntent(intent)
		if err != nil {
			return nil, err
		}
		return matchPayment(result, receipt, s.router, expected, creator, amount), nil
	}

	return matchTransfer(result, receipt, profile.USDC, creator, amount), nil
}

func matchPayment(result *types.VerificationResult, receipt *ethtypes.Receipt, router common.Address, expected common.Hash, creator common.Address, amount *big.Int) *types.VerificationResult {
	var reasons []string
	for _, log := range receipt.Logs {
		ev, ok := clients.UnpackPaymentLog(log)
		if !ok || ev.Router != router {
			continue
		}

		result.Payer = ev.Buyer.Hex()
		result.Recipient = ev.Creator.Hex()
		result.Amount = ev.Amount
		result.SKU = ev.SKU.Hex()
		result.FeeBps = ev.FeeBps

		switch {
		case ev.SKU != expected:
			reasons = append(reasons, fmt.Sprintf("sku %s, expected %s", ev.SKU.Hex(), expected.Hex()))
		case ev.Creator != creator:
			reasons = append(reasons, fmt.Sprintf("paid %s, expected %s", ev.Creator.Hex(), creator.Hex()))
		case amount.Cmp(ev.Amount) != 0:
			reasons = append(reasons, fmt.Sprintf("amount %s, expected %s", ev.Amount, amount))
		default:
			result.IsValid = true
			return result
		}
	}

	if len(reasons) == 0 {
		return invalid(result, "no Payment event from router "+router.Hex())
	}
	return invalid(result, strings.Join(reasons, "; "))
}

func matchTransfer(result *types.VerificationResult, receipt *ethtypes.Receipt, token, creator common.Address, amount *big.Int) *types.VerificationResult {
	var reasons []string
	for _, log := range receipt.Logs {
		ev, ok := clients.UnpackTransferLog(log)
		if !ok || ev.Token != token || ev.To != creator {
			continue
		}

		result.Payer = ev.From.Hex()
		result.Recipient = ev.To.Hex()
		result.Amount = ev.Value
		if ev.Value.Cmp(amount) == 0 {
			result.IsValid = true
			return result
		}
		reasons = append(reasons, fmt.Sprintf("amount %s, expected %s", ev.Value, amount))
	}

	if len(reasons) == 0 {
		return invalid(result, fmt.Sprintf("no USDC transfer to %s", creator.Hex()))
	}
	return invalid(result, strings.Join(reasons, "; "))
}

func invalid(result *types.VerificationResult, reason string) *types.VerificationResult {
	result.IsValid = false
	result.InvalidReason = reason
	return result
}
