package gateway

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/usdcflow/attestation"
	"github.com/vitwit/usdcflow/burnintent"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet"
)

// Attestor submits signed burn intents to the Gateway service.
type Attestor interface {
	Submit(ctx context.Context, intents []attestation.SignedBurnIntent) (*attestation.Attested, error)
	Info(ctx context.Context) (*attestation.InfoResponse, error)
}

// Orchestrator moves USDC from a source chain to the destination chain by
// signing a burn intent and obtaining an attestation. Minting the
// attestation is left to the caller.
type Orchestrator struct {
	registry    *registry.Registry
	builder     *burnintent.Builder
	attestor    Attestor
	callers     clients.CallerSource
	destination types.ChainID
	logger      logger.Logger
	metrics     metrics.Recorder
}

type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func New(
	reg *registry.Registry,
	builder *burnintent.Builder,
	attestor Attestor,
	callers clients.CallerSource,
	destination types.ChainID,
	opts ...Option,
) (*Orchestrator, error) {
	if _, err := reg.Domain(destination); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		registry:    reg,
		builder:     builder,
		attestor:    attestor,
		callers:     callers,
		destination: destination,
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) Destination() types.ChainID { return o.destination }

// Transfer runs one cross-chain transfer. Either a usable attestation or a
// coded error is returned; there is no partial result.
func (o *Orchestrator) Transfer(ctx context.Context, req types.TransferRequest, session wallet.Session) (result *types.TransferResult, err error) {
	start := time.Now()
	defer func() {
		labels := map[string]string{"chain": req.SourceChain.String(), "outcome": metrics.Outcome(err)}
		o.metrics.IncCounter(metrics.Transfers, labels)
		o.metrics.ObserveLatency(metrics.Transfer, time.Since(start), labels)
	}()

	src, err := o.registry.Profile(req.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := o.registry.Profile(o.destination)
	if err != nil {
		return nil, err
	}
	if got := session.ChainID(); got != src.ChainID {
		return nil, types.NewError(types.ErrCodeChainMismatch, src.ChainID,
			"wallet is on chain %d, transfer source is %d", got, src.ChainID)
	}
	if !req.AmountUSD.IsPositive() {
		return nil, types.NewError(types.ErrCodeInvalidRequest, src.ChainID, "amount must be positive")
	}

	signer := session.Address()
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = signer
	}

	gross, err := types.ToUSDCUnits(req.AmountUSD)
	if err != nil {
		return nil, err
	}

	caller, err := o.callers.Caller(src.ChainID)
	if err != nil {
		return nil, err
	}

	balance, err := clients.NewERC20(src.USDC, caller).BalanceOf(ctx, signer)
	if err != nil {
		return nil, types.Classify(err, src.ChainID, types.ErrCodeNetworkTransient, "read USDC balance")
	}
	if balance.Cmp(gross) < 0 {
		return nil, types.NewError(types.ErrCodeInsufficientBalance, src.ChainID,
			"wallet holds %s USDC on %s, transfer needs %s",
			types.FromUSDCUnits(balance), src.Name, types.FromUSDCUnits(gross))
	}

	escrow := o.readEscrowBalance(ctx, caller, src, signer)

	fee := o.builder.FeeUnits(src.ChainID)
	if _, err := burnintent.NetAmount(gross, fee, src.ChainID); err != nil {
		return nil, err
	}

	if !escrow.OK || escrow.Value.Cmp(gross) < 0 {
		if err := o.attemptOptionalDeposit(ctx, session, caller, src, gross); err != nil {
			return nil, err
		}
	}

	intent, err := o.builder.Create(burnintent.Params{
		SourceChain:      src.ChainID,
		DestinationChain: dst.ChainID,
		Amount:           gross,
		Depositor:        signer,
		Recipient:        recipient,
		Signer:           signer,
		MaxFee:           fee,
	})
	if err != nil {
		return nil, err
	}

	sig, err := o.sign(ctx, session, intent)
	if err != nil {
		return nil, err
	}

	attested, err := o.attestor.Submit(ctx, []attestation.SignedBurnIntent{{
		BurnIntent: burnintent.WireMessage(intent),
		Signature:  hexutil.Encode(sig),
	}})
	if err != nil {
		return nil, types.Classify(err, src.ChainID, types.ErrCodeAttestationRejected, "submit burn intent")
	}

	o.logger.Info("transfer attested", map[string]any{
		"source":     src.Name,
		"transferId": attested.TransferID,
		"gross":      gross.String(),
		"fee":        fee.String(),
		"net":        intent.Spec.Value.String(),
	})

	return &types.TransferResult{
		TransferID:       attested.TransferID,
		Attestation:      attested.Attestation,
		Signature:        attested.Signature,
		SourceChain:      src.ChainID,
		DestinationChain: dst.ChainID,
		Gross:            gross,
		Fee:              new(big.Int).Set(intent.MaxFee),
		Net:              new(big.Int).Set(intent.Spec.Value),
		Salt:             intent.Spec.Salt,
		FeeUSD:           types.FromUSDCUnits(intent.MaxFee),
	}, nil
}

// sign asks the wallet for the typed-data signature and checks that it
// recovers to the session address.
func (o *Orchestrator) sign(ctx context.Context, session wallet.Session, intent *types.BurnIntent) ([]byte, error) {
	chain := session.ChainID()

	sig, err := session.SignTypedData(ctx, burnintent.TypedData(intent))
	if err != nil {
		return nil, types.Classify(err, chain, types.ErrCodeInvalidSignature, "sign burn intent")
	}

	recovered, err := burnintent.RecoverSigner(intent, sig)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidSignature, chain, err, "recover burn intent signer")
	}
	if recovered != session.Address() {
		return nil, types.NewError(types.ErrCodeInvalidSignature, chain,
			"burn intent signed by %s, wallet is %s", recovered.Hex(), session.Address().Hex())
	}
	return sig, nil
}
