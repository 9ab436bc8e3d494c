package usdcflow

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/usdcflow/attestation"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/config"
	"github.com/vitwit/usdcflow/consolidation"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet/wallettest"
)

var (
	router  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type stubAttestor struct{ calls int }

func (s *stubAttestor) Submit(context.Context, []attestation.SignedBurnIntent) (*attestation.Attested, error) {
	s.calls++
	return &attestation.Attested{TransferID: "t-1", Attestation: []byte{0xaa}, Signature: []byte{0xbb}}, nil
}

func (s *stubAttestor) Info(context.Context) (*attestation.InfoResponse, error) {
	return &attestation.InfoResponse{}, nil
}

type receiptMap map[common.Hash]*ethtypes.Receipt

func (m receiptMap) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	r, ok := m[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

type stubChains struct {
	clients.StaticCallers
	receipts receiptMap
}

func (s stubChains) Receipts(types.ChainID) (clients.ReceiptReader, error) { return s.receipts, nil }

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usdcflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pay_router: "0x00000000000000000000000000000000000000a1"
consolidation:
  settle_delay: 0s
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

type fixture struct {
	flow     *Flow
	attestor *stubAttestor
	ledger   *ledger.MemoryRecorder
	receipts receiptMap
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	caller := wallettest.NewCaller().
		Set("balanceOf", big.NewInt(100_000_000)).
		Set("availableBalance", big.NewInt(100_000_000)).
		Set("allowance", big.NewInt(0))
	receipts := receiptMap{}
	chains := stubChains{
		StaticCallers: clients.StaticCallers{types.ChainBaseSepolia: caller, types.ChainOPSepolia: caller},
		receipts:      receipts,
	}
	attestor := &stubAttestor{}
	mem := ledger.NewMemoryRecorder()

	flow, err := New(loadConfig(t), chains, WithAttestor(attestor), WithRecorder(mem))
	require.NoError(t, err)
	return &fixture{flow: flow, attestor: attestor, ledger: mem, receipts: receipts}
}

func unlockIntent() types.PaymentIntent {
	return types.PaymentIntent{
		Kind:           types.PaymentUnlock,
		AmountUSD:      decimal.RequireFromString("0.69"),
		CreatorID:      "creator-1",
		CreatorAddress: creator.Hex(),
		PostID:         "p1",
	}
}

func TestEncodeSku(t *testing.T) {
	f := newFixture(t)

	got, err := f.flow.EncodeSku(unlockIntent())
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash([]byte("post:p1")), got)
}

func TestBuildAndSignTransfer(t *testing.T) {
	f := newFixture(t)
	session := wallettest.NewSession(types.ChainBaseSepolia)

	res, err := f.flow.BuildAndSignTransfer(context.Background(), types.TransferRequest{
		SourceChain: types.ChainBaseSepolia,
		AmountUSD:   decimal.RequireFromString("5"),
	}, session)
	require.NoError(t, err)

	assert.Equal(t, types.ChainArcTestnet, res.DestinationChain)
	assert.Equal(t, big.NewInt(10_500), res.Fee)
	assert.Equal(t, big.NewInt(10_500), f.flow.FeeUnits(types.ChainBaseSepolia))
	assert.Equal(t, 1, f.attestor.calls)
}

func TestSettleThenVerify(t *testing.T) {
	f := newFixture(t)
	session := wallettest.NewSession(types.ChainArcTestnet)
	intent := unlockIntent()

	expectedSKU, err := f.flow.EncodeSku(intent)
	require.NoError(t, err)
	log, err := clients.PaymentLog(router, clients.PaymentEvent{
		SKU:     expectedSKU,
		Buyer:   session.Address(),
		Creator: creator,
		Amount:  big.NewInt(690_000),
		FeeBps:  500,
	})
	require.NoError(t, err)
	session.Logs["pay"] = []*ethtypes.Log{log}

	res, err := f.flow.SettlePayment(context.Background(), intent, types.ChainArcTestnet, session)
	require.NoError(t, err)
	assert.True(t, res.ViaRouter)
	assert.Equal(t, []string{"approve", "pay"}, session.Methods())
	require.Len(t, f.ledger.Transactions(), 1)

	txHash := common.HexToHash(res.TxHash)
	receipt, err := session.WaitMined(context.Background(), txHash)
	require.NoError(t, err)
	f.receipts[txHash] = receipt

	verified, err := f.flow.VerifyPayment(context.Background(), intent, types.ChainArcTestnet, txHash)
	require.NoError(t, err)
	assert.True(t, verified.IsValid, verified.InvalidReason)
	assert.Equal(t, session.Address().Hex(), verified.Payer)
}

func TestConsolidateStreamReleasesSession(t *testing.T) {
	f := newFixture(t)
	session := wallettest.NewSession(types.ChainArcTestnet)
	balances := []types.ChainBalance{
		{ChainID: types.ChainBaseSepolia, Amount: decimal.RequireFromString("5")},
		{ChainID: types.ChainOPSepolia, Amount: decimal.RequireFromString("0.0003")},
		{ChainID: types.ChainArcTestnet, Amount: decimal.RequireFromString("10")},
	}

	require.Len(t, f.flow.PlanConsolidation(balances), 1)

	var updates []consolidation.Update
	for u := range f.flow.ConsolidateStream(context.Background(), balances, session.Address(), session) {
		updates = append(updates, u)
	}
	require.Len(t, updates, 2)
	assert.Equal(t, types.StepBridging, updates[0].Step.Status)
	assert.Equal(t, types.StepCompleted, updates[1].Step.Status)
	assert.NotEmpty(t, updates[1].Step.TxHash)
	assert.Equal(t, []types.ChainID{types.ChainBaseSepolia, types.ChainArcTestnet}, session.Switches)

	// the lock is free again once the stream closes
	steps := f.flow.Consolidate(context.Background(), balances[:1], session.Address(), session, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, types.StepCompleted, steps[0].Status)

	bridges := f.ledger.Bridges()
	require.Len(t, bridges, 2)
	assert.Equal(t, steps[0].TxHash, bridges[1].MintTxHash)
	assert.Equal(t, types.ChainBaseSepolia, bridges[1].SourceChain)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := loadConfig(t)
	cfg.DestinationChain = types.ChainID(1)

	_, err := New(cfg, stubChains{}, WithAttestor(&stubAttestor{}))
	assert.ErrorIs(t, err, types.ErrUnsupportedChain)
}
