package consolidation

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/usdcflow/burnintent"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet"
	"github.com/vitwit/usdcflow/wallet/wallettest"
)

type fakeTransferer struct {
	mu       sync.Mutex
	failures map[types.ChainID]error
	requests []types.TransferRequest
}

func (f *fakeTransferer) Transfer(_ context.Context, req types.TransferRequest, session wallet.Session) (*types.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if session.ChainID() != req.SourceChain {
		return nil, types.NewError(types.ErrCodeChainMismatch, req.SourceChain, "session on %d", session.ChainID())
	}
	if err := f.failures[req.SourceChain]; err != nil {
		return nil, err
	}
	return &types.TransferResult{
		Attestation:      []byte{byte(len(f.requests))},
		Signature:        []byte{0x5},
		TransferID:       "tr-" + req.SourceChain.String(),
		SourceChain:      req.SourceChain,
		DestinationChain: types.ChainArcTestnet,
		Gross:            big.NewInt(5_000_000),
		Fee:              big.NewInt(10_000),
		Net:              big.NewInt(4_990_000),
	}, nil
}

func newCoordinator(t *testing.T, tr Transferer, opts ...Option) *Coordinator {
	t.Helper()
	reg := registry.Default()
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	c, err := New(reg, burnintent.NewBuilder(reg, burnintent.DefaultFeePolicy()), tr, types.ChainArcTestnet, opts...)
	require.NoError(t, err)
	return c
}

func balance(chain types.ChainID, usd string) types.ChainBalance {
	return types.ChainBalance{ChainID: chain, Amount: decimal.RequireFromString(usd)}
}

func statuses(steps []types.ConsolidationStep) []types.StepStatus {
	out := make([]types.StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestPlanExcludesBalancesBelowFee(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})

	steps := c.Plan([]types.ChainBalance{
		balance(types.ChainBaseSepolia, "5.00"),
		balance(types.ChainOPSepolia, "0.0003"),
	})

	require.Len(t, steps, 1)
	assert.Equal(t, types.ChainBaseSepolia, steps[0].ChainID)
	assert.Equal(t, "Base Sepolia", steps[0].ChainName)
	assert.Equal(t, types.StepPending, steps[0].Status)
}

func TestPlanFilters(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})

	steps := c.Plan([]types.ChainBalance{
		balance(types.ChainArcTestnet, "10"),
		balance(types.ChainID(1), "10"),
		balance(types.ChainBaseSepolia, "0.0105"),
		balance(types.ChainBaseSepolia, "0.010501"),
		balance(types.ChainEthereumSepolia, "2.1"),
		balance(types.ChainPolygonAmoy, "0"),
	})

	require.Len(t, steps, 1)
	assert.True(t, steps[0].Balance.Equal(decimal.RequireFromString("0.010501")))
}

func TestPlanBridgesEachChainOnce(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})

	steps := c.Plan([]types.ChainBalance{
		balance(types.ChainBaseSepolia, "5"),
		balance(types.ChainOPSepolia, "2"),
		balance(types.ChainBaseSepolia, "7"),
	})

	require.Len(t, steps, 2)
	assert.Equal(t, types.ChainBaseSepolia, steps[0].ChainID)
	assert.True(t, steps[0].Balance.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, types.ChainOPSepolia, steps[1].ChainID)
}

func TestConsolidateContinuesAfterFailure(t *testing.T) {
	tr := &fakeTransferer{failures: map[types.ChainID]error{
		types.ChainPolygonAmoy: types.NewError(types.ErrCodeNetworkTransient, types.ChainPolygonAmoy, "rpc timeout"),
	}}
	c := newCoordinator(t, tr)
	session := wallettest.NewSession(types.ChainBaseSepolia)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	var updates []Update
	steps := c.Consolidate(context.Background(), []types.ChainBalance{
		balance(types.ChainBaseSepolia, "5"),
		balance(types.ChainPolygonAmoy, "3"),
		balance(types.ChainOPSepolia, "2"),
	}, recipient, session, func(u Update) { updates = append(updates, u) })

	require.Len(t, steps, 3)
	assert.Equal(t, []types.StepStatus{types.StepCompleted, types.StepError, types.StepCompleted}, statuses(steps))
	assert.Contains(t, steps[1].Error, "rpc timeout")
	assert.False(t, steps[1].UserRejected)
	assert.NotEmpty(t, steps[0].TxHash)
	assert.NotEmpty(t, steps[2].TxHash)

	require.Len(t, updates, 6)
	assert.Equal(t, types.StepBridging, updates[0].Step.Status)
	assert.Equal(t, types.StepCompleted, updates[1].Step.Status)
	assert.Equal(t, 1, updates[2].Index)
	assert.Equal(t, types.StepError, updates[3].Step.Status)

	assert.Equal(t, []types.ChainID{
		types.ChainArcTestnet,
		types.ChainPolygonAmoy,
		types.ChainOPSepolia,
		types.ChainArcTestnet,
	}, session.Switches)

	require.Equal(t, []string{"gatewayMint", "gatewayMint"}, session.Methods())
	for _, tx := range session.Sent {
		assert.Equal(t, types.ChainArcTestnet, tx.ChainID)
		assert.Equal(t, registry.TestnetGatewayMinter, tx.To)
	}

	require.Len(t, tr.requests, 3)
	assert.Equal(t, recipient, tr.requests[0].Recipient)
	assert.True(t, tr.requests[2].AmountUSD.Equal(decimal.NewFromInt(2)))
}

type failingRecorder struct{ ledger.NopRecorder }

func (failingRecorder) RecordBridge(context.Context, ledger.BridgeRecord) error {
	return errors.New("ledger down")
}

func TestConsolidateRecordsMintedTransfers(t *testing.T) {
	tr := &fakeTransferer{failures: map[types.ChainID]error{
		types.ChainPolygonAmoy: types.NewError(types.ErrCodeNetworkTransient, types.ChainPolygonAmoy, "rpc timeout"),
	}}
	mem := ledger.NewMemoryRecorder()
	c := newCoordinator(t, tr, WithRecorder(mem))
	session := wallettest.NewSession(types.ChainBaseSepolia)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	steps := c.Consolidate(context.Background(), []types.ChainBalance{
		balance(types.ChainBaseSepolia, "5"),
		balance(types.ChainPolygonAmoy, "3"),
	}, recipient, session, nil)
	require.Len(t, steps, 2)

	bridges := mem.Bridges()
	require.Len(t, bridges, 1)
	rec := bridges[0]
	assert.Equal(t, "tr-"+types.ChainBaseSepolia.String(), rec.TransferID)
	assert.Equal(t, types.ChainBaseSepolia, rec.SourceChain)
	assert.Equal(t, types.ChainArcTestnet, rec.DestinationChain)
	assert.Equal(t, "5000000", rec.GrossUnits)
	assert.Equal(t, "10000", rec.FeeUnits)
	assert.Equal(t, "4990000", rec.NetUnits)
	assert.Equal(t, steps[0].TxHash, rec.MintTxHash)
	assert.Equal(t, session.Address().Hex(), rec.Depositor)
	assert.Equal(t, recipient.Hex(), rec.Recipient)
}

func TestConsolidateRecordFailureKeepsStep(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{}, WithRecorder(failingRecorder{}))
	session := wallettest.NewSession(types.ChainBaseSepolia)

	steps := c.Consolidate(context.Background(), []types.ChainBalance{balance(types.ChainBaseSepolia, "5")},
		common.HexToAddress("0xee"), session, nil)

	require.Len(t, steps, 1)
	assert.Equal(t, types.StepCompleted, steps[0].Status)
}

func TestConsolidateFlagsUserRejection(t *testing.T) {
	tr := &fakeTransferer{failures: map[types.ChainID]error{
		types.ChainBaseSepolia: types.NewError(types.ErrCodeUserRejectedSignature, types.ChainBaseSepolia, "User rejected the request."),
	}}
	c := newCoordinator(t, tr)

	steps := c.Consolidate(context.Background(), []types.ChainBalance{balance(types.ChainBaseSepolia, "5")},
		common.Address{}, wallettest.NewSession(types.ChainBaseSepolia), nil)

	require.Len(t, steps, 1)
	assert.Equal(t, types.StepError, steps[0].Status)
	assert.True(t, steps[0].UserRejected)
}

func TestConsolidateMintRevertIsStepError(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})
	session := wallettest.NewSession(types.ChainBaseSepolia)
	session.Reverted["gatewayMint"] = true

	steps := c.Consolidate(context.Background(), []types.ChainBalance{balance(types.ChainBaseSepolia, "5")},
		common.Address{}, session, nil)

	require.Len(t, steps, 1)
	assert.Equal(t, types.StepError, steps[0].Status)
	assert.Contains(t, steps[0].Error, "gatewayMint")
}

func TestConsolidateSwitchDeclined(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})
	session := wallettest.NewSession(types.ChainArcTestnet)
	session.OnSwitch = func(chain types.ChainID) error {
		if chain == types.ChainAvalancheFuji {
			return wallettest.ErrRejected
		}
		return nil
	}

	steps := c.Consolidate(context.Background(), []types.ChainBalance{
		balance(types.ChainAvalancheFuji, "1"),
		balance(types.ChainBaseSepolia, "1"),
	}, common.Address{}, session, nil)

	assert.Equal(t, []types.StepStatus{types.StepError, types.StepCompleted}, statuses(steps))
	assert.True(t, steps[0].UserRejected)
}

func TestSettleDelayHonoursContext(t *testing.T) {
	reg := registry.Default()
	c, err := New(reg, burnintent.NewBuilder(reg, burnintent.DefaultFeePolicy()), &fakeTransferer{},
		types.ChainArcTestnet, WithSettleDelay(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	steps := c.Consolidate(ctx, []types.ChainBalance{balance(types.ChainBaseSepolia, "5")},
		common.Address{}, wallettest.NewSession(types.ChainArcTestnet), nil)

	require.Len(t, steps, 1)
	assert.Equal(t, types.StepError, steps[0].Status)
}

func TestStream(t *testing.T) {
	c := newCoordinator(t, &fakeTransferer{})

	ch := c.Stream(context.Background(), []types.ChainBalance{
		balance(types.ChainBaseSepolia, "5"),
		balance(types.ChainUnichainSepolia, "1"),
	}, common.Address{}, wallettest.NewSession(types.ChainBaseSepolia))

	var got []types.StepStatus
	for u := range ch {
		got = append(got, u.Step.Status)
	}
	assert.Equal(t, []types.StepStatus{
		types.StepBridging, types.StepCompleted,
		types.StepBridging, types.StepCompleted,
	}, got)
}

func TestNewRequiresRegisteredDestination(t *testing.T) {
	reg := registry.Default()
	_, err := New(reg, burnintent.NewBuilder(reg, burnintent.DefaultFeePolicy()), &fakeTransferer{}, types.ChainID(1))
	assert.True(t, errors.Is(err, types.ErrUnsupportedChain))
}
