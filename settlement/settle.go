package settlement

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/sku"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
	"github.com/vitwit/usdcflow/wallet"
)

// Settler pays a creator for one intent on one chain.
type Settler interface {
	Settle(ctx context.Context, intent types.PaymentIntent, chain types.ChainID, session wallet.Session) (*types.SettlementResult, error)
}

// SettlementService routes payments through the PayRouter on the home chain
// and pays creators directly everywhere else.
type SettlementService struct {
	registry  *registry.Registry
	homeChain types.ChainID
	router    common.Address
	recorder  ledger.Recorder
	logger    logger.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

type Option func(*SettlementService)

func WithRecorder(r ledger.Recorder) Option {
	return func(s *SettlementService) { s.recorder = r }
}

func WithLogger(l logger.Logger) Option {
	return func(s *SettlementService) { s.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *SettlementService) { s.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *SettlementService) { s.now = now }
}

// NewSettlementService creates a settlement service. A zero router is
// accepted and reported when a home-chain payment needs it.
func NewSettlementService(reg *registry.Registry, homeChain types.ChainID, router common.Address, opts ...Option) (*SettlementService, error) {
	if !reg.Supports(homeChain) {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, homeChain, "home chain %d is not registered", homeChain)
	}

	s := &SettlementService{
		registry:  reg,
		homeChain: homeChain,
		router:    router,
		recorder:  ledger.NopRecorder{},
		logger:    logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SettlementService) HomeChain() types.ChainID { return s.homeChain }

func (s *SettlementService) Router() common.Address { return s.router }

// Settle pays intent on chain from session. Funds have moved once a
// result is returned; a ledger failure only sets RecordPending.
func (s *SettlementService) Settle(
	ctx context.Context,
	intent types.PaymentIntent,
	chain types.ChainID,
	session wallet.Session,
) (result *types.SettlementResult, err error) {
	start := time.Now()
	defer func() {
		labels := map[string]string{"chain": chain.String(), "outcome": metrics.Outcome(err)}
		s.metrics.IncCounter(metrics.Settlements, labels)
		s.metrics.ObserveLatency(metrics.Settle, time.Since(start), labels)
	}()

	profile, err := s.registry.Profile(chain)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidatePaymentIntent(intent); err != nil {
		return nil, withChain(err, chain)
	}
	creator, err := utils.ParseAddress(intent.CreatorAddress, "creatorAddress")
	if err != nil {
		return nil, withChain(err, chain)
	}

	amount, err := types.ToUSDCUnits(intent.AmountUSD)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, types.NewError(types.ErrCodeInvalidRequest, chain, "amount %s rounds to zero USDC units", intent.AmountUSD)
	}

	viaRouter := chain == s.homeChain
	if viaRouter && s.router == (common.Address{}) {
		return nil, types.NewError(types.ErrCodeUnconfiguredAddress, chain, "PayRouter address is not configured")
	}

	if err := wallet.EnsureChain(ctx, session, chain); err != nil {
		return nil, err
	}

	result = &types.SettlementResult{
		ChainID:   chain,
		Amount:    amount,
		ViaRouter: viaRouter,
		Fee:       new(big.Int),
	}

	if viaRouter {
		code, err := sku.ForIntent(intent)
		if err != nil {
			return nil, withChain(err, chain)
		}
		result.SKU = code.Hex()

		approval, payment, err := s.payViaRouter(ctx, session, profile, code, creator, amount)
		if err != nil {
			return nil, err
		}
		result.ApprovalHash = approval.TxHash.Hex()
		result.TxHash = payment.TxHash.Hex()
		s.applyFee(result, payment)
	} else {
		receipt, err := s.payDirect(ctx, session, profile, creator, amount)
		if err != nil {
			return nil, err
		}
		result.TxHash = receipt.TxHash.Hex()
	}
	result.SettledAt = s.now()

	s.logger.Info("payment settled", map[string]any{
		"chain":     profile.Name,
		"kind":      string(intent.Kind),
		"amount":    amount.String(),
		"viaRouter": viaRouter,
		"feeBps":    result.FeeBps,
		"tx":        result.TxHash,
	})

	s.record(ctx, intent, session.Address(), result)
	return result, nil
}

// payViaRouter approves exactly amount for the router, waits for the
// approval, then calls pay.
func (s *SettlementService) payViaRouter(
	ctx context.Context,
	session wallet.Session,
	profile types.ChainProfile,
	code [32]byte,
	creator common.Address,
	amount *big.Int,
) (*ethtypes.Receipt, *ethtypes.Receipt, error) {
	data, err := clients.PackApprove(s.router, amount)
	if err != nil {
		return nil, nil, err
	}
	approval, err := wallet.SendAndWait(ctx, session, profile.USDC, data, "approve PayRouter")
	if err != nil {
		return nil, nil, err
	}

	data, err = clients.PackPay(code, creator, amount)
	if err != nil {
		return nil, nil, err
	}
	payment, err := wallet.SendAndWait(ctx, session, s.router, data, "pay")
	if err != nil {
		return nil, nil, err
	}
	return approval, payment, nil
}

func (s *SettlementService) payDirect(
	ctx context.Context,
	session wallet.Session,
	profile types.ChainProfile,
	creator common.Address,
	amount *big.Int,
) (*ethtypes.Receipt, error) {
	data, err := clients.PackTransfer(creator, amount)
	if err != nil {
		return nil, err
	}
	return wallet.SendAndWait(ctx, session, profile.USDC, data, "transfer")
}

// applyFee reads the fee the router charged from its Payment log.
func (s *SettlementService) applyFee(result *types.SettlementResult, receipt *ethtypes.Receipt) {
	for _, l := range receipt.Logs {
		ev, ok := clients.UnpackPaymentLog(l)
		if !ok || ev.Router != s.router {
			continue
		}
		result.FeeBps = ev.FeeBps
		result.Fee = new(big.Int).Div(new(big.Int).Mul(ev.Amount, big.NewInt(int64(ev.FeeBps))), big.NewInt(10_000))
		return
	}
	s.logger.Warn("pay receipt has no Payment log", map[string]any{"tx": result.TxHash})
}

func (s *SettlementService) record(ctx context.Context, intent types.PaymentIntent, buyer common.Address, result *types.SettlementResult) {
	rec := ledger.NewTransactionRecord(intent, buyer.Hex(), result)
	result.RecordID = rec.ID

	if err := s.recorder.RecordTransaction(ctx, rec); err != nil {
		result.RecordPending = true
		s.logger.Error("failed to record settled payment", map[string]any{
			"recordId": rec.ID,
			"tx":       result.TxHash,
			"error":    err,
		})
	}
}

// withChain stamps chain onto a coded error that has none.
func withChain(err error, chain types.ChainID) error {
	if e, ok := err.(*types.Error); ok && e.ChainID == 0 {
		cp := *e
		cp.ChainID = chain
		return &cp
	}
	return err
}
