// Package usdcflow moves USDC across chains through Circle Gateway burn
// intents, consolidates balances onto one destination chain and settles
// creator payments through the PayRouter.
package usdcflow

import (
	"context"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/usdcflow/attestation"
	"github.com/vitwit/usdcflow/burnintent"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/config"
	"github.com/vitwit/usdcflow/consolidation"
	"github.com/vitwit/usdcflow/gateway"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/settlement"
	"github.com/vitwit/usdcflow/sku"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/verification"
	"github.com/vitwit/usdcflow/wallet"
)

const Version = "0.1.0"

// Chains gives read access to every configured chain. *clients.Pool
// satisfies it.
type Chains interface {
	clients.CallerSource
	verification.ReceiptSource
}

// Flow is the caller-facing entry point. One wallet session is driven at a
// time; concurrent calls queue on the session lock.
type Flow struct {
	mu sync.Mutex

	registry     *registry.Registry
	builder      *burnintent.Builder
	orchestrator *gateway.Orchestrator
	coordinator  *consolidation.Coordinator
	settlement   *settlement.SettlementService
	verification *verification.VerificationService

	attestor   gateway.Attestor
	recorder   ledger.Recorder
	httpClient *http.Client
	logger     logger.Logger
	metrics    metrics.Recorder
}

// New wires every component from cfg.
func New(cfg *config.Config, chains Chains, opts ...Option) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	f := &Flow{
		registry: reg,
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.attestor == nil {
		aOpts := []attestation.Option{attestation.WithLogger(f.logger), attestation.WithMetrics(f.metrics)}
		if f.httpClient != nil {
			aOpts = append(aOpts, attestation.WithHTTPClient(f.httpClient))
		}
		f.attestor = attestation.NewClient(cfg.AttestationConfig(), aOpts...)
	}
	if f.recorder == nil {
		f.recorder = newRecorder(cfg.Ledger, f.httpClient, f.logger)
	}

	f.builder = burnintent.NewBuilder(reg, cfg.FeePolicy())

	f.orchestrator, err = gateway.New(reg, f.builder, f.attestor, chains, cfg.DestinationChain,
		gateway.WithLogger(f.logger), gateway.WithMetrics(f.metrics))
	if err != nil {
		return nil, err
	}

	f.coordinator, err = consolidation.New(reg, f.builder, f.orchestrator, cfg.DestinationChain,
		consolidation.WithSettleDelay(cfg.Consolidation.SettleDelay),
		consolidation.WithRecorder(f.recorder),
		consolidation.WithLogger(f.logger),
		consolidation.WithMetrics(f.metrics))
	if err != nil {
		return nil, err
	}

	f.settlement, err = settlement.NewSettlementService(reg, cfg.HomeChain, cfg.PayRouter,
		settlement.WithRecorder(f.recorder),
		settlement.WithLogger(f.logger),
		settlement.WithMetrics(f.metrics))
	if err != nil {
		return nil, err
	}

	f.verification = verification.NewVerificationService(reg, cfg.HomeChain, cfg.PayRouter, chains, cfg.Gateway.Timeout)
	return f, nil
}

func newRecorder(cfg config.LedgerConfig, httpClient *http.Client, l logger.Logger) ledger.Recorder {
	if cfg.URL == "" {
		return ledger.NopRecorder{}
	}
	opts := []ledger.HTTPOption{ledger.WithLogger(l)}
	if httpClient != nil {
		opts = append(opts, ledger.WithHTTPClient(httpClient))
	}
	return ledger.NewHTTPRecorder(cfg.URL, cfg.Timeout, opts...)
}

func (f *Flow) Registry() *registry.Registry { return f.registry }

// Recorder is the ledger settlements are written to.
func (f *Flow) Recorder() ledger.Recorder { return f.recorder }

// BuildAndSignTransfer signs a burn intent for req and returns the
// attestation to mint on the destination chain.
func (f *Flow) BuildAndSignTransfer(ctx context.Context, req types.TransferRequest, session wallet.Session) (*types.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orchestrator.Transfer(ctx, req, session)
}

// Consolidate moves every worthwhile balance to the destination chain and
// mints it there. Failures are reported per step.
func (f *Flow) Consolidate(
	ctx context.Context,
	balances []types.ChainBalance,
	recipient common.Address,
	session wallet.Session,
	onUpdate func(consolidation.Update),
) []types.ConsolidationStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coordinator.Consolidate(ctx, balances, recipient, session, onUpdate)
}

// ConsolidateStream is Consolidate with progress on a channel. The session
// stays locked until the channel is closed.
func (f *Flow) ConsolidateStream(
	ctx context.Context,
	balances []types.ChainBalance,
	recipient common.Address,
	session wallet.Session,
) <-chan consolidation.Update {
	f.mu.Lock()
	in := f.coordinator.Stream(ctx, balances, recipient, session)
	out := make(chan consolidation.Update, cap(in))

	go func() {
		defer f.mu.Unlock()
		defer close(out)
		for u := range in {
			out <- u
		}
	}()
	return out
}

// PlanConsolidation reports which balances Consolidate would move.
func (f *Flow) PlanConsolidation(balances []types.ChainBalance) []types.ConsolidationStep {
	return f.coordinator.Plan(balances)
}

// SettlePayment pays the creator named by intent on chain.
func (f *Flow) SettlePayment(ctx context.Context, intent types.PaymentIntent, chain types.ChainID, session wallet.Session) (*types.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settlement.Settle(ctx, intent, chain, session)
}

// VerifyPayment checks that txHash settled intent on chain.
func (f *Flow) VerifyPayment(ctx context.Context, intent types.PaymentIntent, chain types.ChainID, txHash common.Hash) (*types.VerificationResult, error) {
	return f.verification.Verify(ctx, intent, chain, txHash)
}

// EncodeSku returns the PayRouter SKU for intent.
func (f *Flow) EncodeSku(intent types.PaymentIntent) (common.Hash, error) {
	return sku.ForIntent(intent)
}

// FeeUnits is the maxFee a burn intent from chain would carry.
func (f *Flow) FeeUnits(chain types.ChainID) *big.Int {
	return f.builder.FeeUnits(chain)
}

func (f *Flow) WalletBalances(ctx context.Context, owner common.Address) []types.ChainBalance {
	return f.orchestrator.WalletBalances(ctx, owner)
}

func (f *Flow) VerifyRegistry(ctx context.Context) ([]gateway.RegistryMismatch, error) {
	return f.orchestrator.VerifyRegistry(ctx)
}
