// Package consolidation sweeps USDC from several source chains into the
// destination chain, one chain at a time.
package consolidation

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet"
)

// DefaultSettleDelay is how long to wait after a chain switch before
// signing, so the wallet's chain-changed event has propagated.
const DefaultSettleDelay = 1500 * time.Millisecond

// Transferer obtains an attestation for one source chain.
type Transferer interface {
	Transfer(ctx context.Context, req types.TransferRequest, session wallet.Session) (*types.TransferResult, error)
}

// FeeQuoter returns the Gateway fee in USDC base units for a source chain.
type FeeQuoter interface {
	FeeUnits(chain types.ChainID) *big.Int
}

// Update is one state transition of step Index.
type Update struct {
	Index int
	Step  types.ConsolidationStep
}

type Coordinator struct {
	registry    *registry.Registry
	fees        FeeQuoter
	transferer  Transferer
	destination types.ChainID
	settleDelay time.Duration
	recorder    ledger.Recorder
	logger      logger.Logger
	metrics     metrics.Recorder
}

type Option func(*Coordinator)

func WithSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.settleDelay = d }
}

// WithRecorder records every minted transfer. A failed record is logged
// and does not fail the step.
func WithRecorder(r ledger.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Coordinator) { c.metrics = r }
}

func New(reg *registry.Registry, fees FeeQuoter, transferer Transferer, destination types.ChainID, opts ...Option) (*Coordinator, error) {
	dst, err := reg.Profile(destination)
	if err != nil {
		return nil, err
	}
	if dst.GatewayMinter == (common.Address{}) {
		return nil, types.NewError(types.ErrCodeUnconfiguredAddress, destination, "no GatewayMinter on %s", dst.Name)
	}

	c := &Coordinator{
		registry:    reg,
		fees:        fees,
		transferer:  transferer,
		destination: destination,
		settleDelay: DefaultSettleDelay,
		recorder:    ledger.NopRecorder{},
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Plan turns balances into pending steps. The destination chain, chains
// missing from the registry and chains whose balance would not cover the
// Gateway fee are left out. A chain is planned at most once, from its first
// entry that covers the fee.
func (c *Coordinator) Plan(balances []types.ChainBalance) []types.ConsolidationStep {
	steps := make([]types.ConsolidationStep, 0, len(balances))
	seen := make(map[types.ChainID]struct{}, len(balances))

	for _, b := range balances {
		if b.ChainID == c.destination {
			continue
		}
		if _, dup := seen[b.ChainID]; dup {
			c.logger.Debug("skipping repeated chain", map[string]any{"chain": b.ChainID.String()})
			continue
		}
		p, err := c.registry.Profile(b.ChainID)
		if err != nil {
			c.logger.Debug("skipping unregistered chain", map[string]any{"chain": b.ChainID.String()})
			continue
		}
		gross, err := types.ToUSDCUnits(b.Amount)
		if err != nil || gross.Cmp(c.fees.FeeUnits(b.ChainID)) <= 0 {
			c.logger.Debug("skipping balance below fee", map[string]any{
				"chain":   b.ChainID.String(),
				"balance": b.Amount.String(),
			})
			continue
		}

		seen[b.ChainID] = struct{}{}
		steps = append(steps, types.ConsolidationStep{
			ChainID:   b.ChainID,
			ChainName: p.Name,
			Balance:   b.Amount,
			Status:    types.StepPending,
		})
	}
	return steps
}

// Consolidate plans the batch and runs every step in order. A failing step
// is marked as an error and the next chain is still attempted. onUpdate,
// if set, receives each transition before the next one starts.
func (c *Coordinator) Consolidate(
	ctx context.Context,
	balances []types.ChainBalance,
	recipient common.Address,
	session wallet.Session,
	onUpdate func(Update),
) []types.ConsolidationStep {
	steps := c.Plan(balances)
	c.run(ctx, steps, recipient, session, onUpdate)
	return steps
}

// Stream is Consolidate with transitions delivered on a channel. The
// channel is buffered for the whole batch and closed when it finishes, so
// a slow or absent reader never stalls the wallet flow.
func (c *Coordinator) Stream(
	ctx context.Context,
	balances []types.ChainBalance,
	recipient common.Address,
	session wallet.Session,
) <-chan Update {
	steps := c.Plan(balances)
	ch := make(chan Update, 2*len(steps))

	go func() {
		defer close(ch)
		c.run(ctx, steps, recipient, session, func(u Update) { ch <- u })
	}()
	return ch
}

func (c *Coordinator) run(ctx context.Context, steps []types.ConsolidationStep, recipient common.Address, session wallet.Session, onUpdate func(Update)) {
	emit := func(i int) {
		if onUpdate != nil {
			onUpdate(Update{Index: i, Step: steps[i]})
		}
	}

	for i := range steps {
		step := &steps[i]
		step.Status = types.StepBridging
		emit(i)

		txHash, err := c.consolidateChain(ctx, *step, recipient, session)
		if err != nil {
			step.Status = types.StepError
			step.Error = err.Error()
			step.UserRejected = types.IsUserRejection(err)

			fields := map[string]any{"chain": step.ChainName, "error": err}
			if step.UserRejected {
				c.logger.Info("consolidation step declined", fields)
			} else {
				c.logger.Warn("consolidation step failed", fields)
			}
		} else {
			step.Status = types.StepCompleted
			step.TxHash = txHash.Hex()
			c.logger.Info("consolidation step completed", map[string]any{"chain": step.ChainName, "tx": step.TxHash})
		}

		c.metrics.IncCounter(metrics.ConsolidationSteps, map[string]string{
			"chain":   step.ChainID.String(),
			"outcome": metrics.Outcome(err),
		})
		emit(i)
	}
}

func (c *Coordinator) consolidateChain(ctx context.Context, step types.ConsolidationStep, recipient common.Address, session wallet.Session) (common.Hash, error) {
	if session.ChainID() != step.ChainID {
		if err := wallet.EnsureChain(ctx, session, step.ChainID); err != nil {
			return common.Hash{}, err
		}
		if err := c.settle(ctx); err != nil {
			return common.Hash{}, types.Classify(err, step.ChainID, types.ErrCodeNetworkTransient, "settle delay")
		}
	}

	res, err := c.transferer.Transfer(ctx, types.TransferRequest{
		SourceChain: step.ChainID,
		AmountUSD:   step.Balance,
		Recipient:   recipient,
	}, session)
	if err != nil {
		return common.Hash{}, err
	}

	mintTx, err := c.mint(ctx, session, res)
	if err != nil {
		return common.Hash{}, err
	}
	c.record(ctx, res, session.Address(), recipient, mintTx)
	return mintTx, nil
}

func (c *Coordinator) record(ctx context.Context, res *types.TransferResult, depositor, recipient common.Address, mintTx common.Hash) {
	rec := ledger.NewBridgeRecord(res, depositor, recipient, mintTx, time.Now())
	if err := c.recorder.RecordBridge(ctx, rec); err != nil {
		c.logger.Error("failed to record bridge transfer", map[string]any{
			"recordId": rec.ID,
			"tx":       rec.MintTxHash,
			"error":    err,
		})
	}
}

func (c *Coordinator) mint(ctx context.Context, session wallet.Session, res *types.TransferResult) (common.Hash, error) {
	dst, err := c.registry.Profile(c.destination)
	if err != nil {
		return common.Hash{}, err
	}
	if err := wallet.EnsureChain(ctx, session, dst.ChainID); err != nil {
		return common.Hash{}, err
	}

	data, err := clients.PackGatewayMint(res.Attestation, res.Signature)
	if err != nil {
		return common.Hash{}, types.WrapError(types.ErrCodeInvalidRequest, dst.ChainID, err, "encode gatewayMint")
	}
	receipt, err := wallet.SendAndWait(ctx, session, dst.GatewayMinter, data, "gatewayMint")
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func (c *Coordinator) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.settleDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
