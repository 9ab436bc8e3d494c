package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/wallet/wallettest"
)

var (
	router  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	settled = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func unlockIntent() types.PaymentIntent {
	return types.PaymentIntent{
		Kind:           types.PaymentUnlock,
		AmountUSD:      decimal.RequireFromString("0.69"),
		CreatorID:      "creator-1",
		CreatorAddress: creator.Hex(),
		PostID:         "p1",
	}
}

func newService(t *testing.T, routerAddr common.Address, opts ...Option) *SettlementService {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return settled })}, opts...)
	s, err := NewSettlementService(registry.Default(), types.ChainArcTestnet, routerAddr, opts...)
	require.NoError(t, err)
	return s
}

type failingRecorder struct{ ledger.NopRecorder }

func (failingRecorder) RecordTransaction(context.Context, ledger.TransactionRecord) error {
	return errors.New("ledger down")
}

func TestSettleOnHomeChainUsesRouter(t *testing.T) {
	mem := ledger.NewMemoryRecorder()
	s := newService(t, router, WithRecorder(mem))
	session := wallettest.NewSession(types.ChainArcTestnet)

	res, err := s.Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)
	require.NoError(t, err)

	require.Equal(t, []string{"approve", "pay"}, session.Methods())
	arcUSDC, err := registry.Default().USDCAddress(types.ChainArcTestnet)
	require.NoError(t, err)

	approve := session.Sent[0]
	assert.Equal(t, arcUSDC, approve.To)
	assert.Equal(t, router, approve.Args[0])
	assert.Equal(t, big.NewInt(690_000), approve.Args[1])

	expectedSKU := crypto.Keccak256Hash([]byte("post:p1"))
	pay := session.Sent[1]
	assert.Equal(t, router, pay.To)
	assert.Equal(t, [32]byte(expectedSKU), pay.Args[0])
	assert.Equal(t, creator, pay.Args[1])
	assert.Equal(t, big.NewInt(690_000), pay.Args[2])

	assert.True(t, res.ViaRouter)
	assert.Equal(t, expectedSKU.Hex(), res.SKU)
	assert.Equal(t, pay.Hash.Hex(), res.TxHash)
	assert.Equal(t, approve.Hash.Hex(), res.ApprovalHash)
	assert.Equal(t, settled, res.SettledAt)
	assert.False(t, res.RecordPending)

	records := mem.Transactions()
	require.Len(t, records, 1)
	assert.Equal(t, res.RecordID, records[0].ID)
	assert.Equal(t, session.Address().Hex(), records[0].Buyer)
	assert.Equal(t, "690000", records[0].AmountUnits)
	assert.Zero(t, res.FeeBps)
	assert.Equal(t, "0", records[0].FeeUnits)
}

func TestSettleReadsRouterFee(t *testing.T) {
	mem := ledger.NewMemoryRecorder()
	s := newService(t, router, WithRecorder(mem))
	session := wallettest.NewSession(types.ChainArcTestnet)

	ev := clients.PaymentEvent{
		SKU:     crypto.Keccak256Hash([]byte("post:p1")),
		Buyer:   session.Address(),
		Creator: creator,
		Amount:  big.NewInt(690_000),
		FeeBps:  500,
	}
	other, err := clients.PaymentLog(common.HexToAddress("0xbad"), clients.PaymentEvent{Amount: big.NewInt(1), FeeBps: 9_000})
	require.NoError(t, err)
	own, err := clients.PaymentLog(router, ev)
	require.NoError(t, err)
	session.Logs["pay"] = []*ethtypes.Log{other, own}

	res, err := s.Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)
	require.NoError(t, err)

	assert.Equal(t, uint16(500), res.FeeBps)
	assert.Equal(t, big.NewInt(34_500), res.Fee)

	records := mem.Transactions()
	require.Len(t, records, 1)
	assert.Equal(t, uint16(500), records[0].FeeBps)
	assert.Equal(t, "34500", records[0].FeeUnits)
}

func TestSettleElsewhereTransfersDirectly(t *testing.T) {
	s := newService(t, common.Address{})
	session := wallettest.NewSession(types.ChainArcTestnet)

	res, err := s.Settle(context.Background(), unlockIntent(), types.ChainBaseSepolia, session)
	require.NoError(t, err)

	assert.Equal(t, []types.ChainID{types.ChainBaseSepolia}, session.Switches)
	require.Equal(t, []string{"transfer"}, session.Methods())
	tx := session.Sent[0]
	assert.Equal(t, types.ChainBaseSepolia, tx.ChainID)
	assert.Equal(t, creator, tx.Args[0])
	assert.Equal(t, big.NewInt(690_000), tx.Args[1])
	assert.False(t, res.ViaRouter)
	assert.Empty(t, res.SKU)
	assert.Equal(t, big.NewInt(0), res.Fee)
}

func TestSettleRoundsAtSixDecimals(t *testing.T) {
	s := newService(t, router)
	session := wallettest.NewSession(types.ChainArcTestnet)
	intent := unlockIntent()
	intent.AmountUSD = decimal.RequireFromString("1.1")

	res, err := s.Settle(context.Background(), intent, types.ChainArcTestnet, session)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_100_000), res.Amount)
}

func TestSettleFailures(t *testing.T) {
	t.Run("router not configured", func(t *testing.T) {
		session := wallettest.NewSession(types.ChainArcTestnet)
		_, err := newService(t, common.Address{}).Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)

		assert.ErrorIs(t, err, types.ErrUnconfiguredAddress)
		assert.Empty(t, session.Sent)
	})

	t.Run("creator is zero address", func(t *testing.T) {
		intent := unlockIntent()
		intent.CreatorAddress = common.Address{}.Hex()
		session := wallettest.NewSession(types.ChainArcTestnet)

		_, err := newService(t, router).Settle(context.Background(), intent, types.ChainArcTestnet, session)
		assert.ErrorIs(t, err, types.ErrUnconfiguredAddress)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		_, err := newService(t, router).Settle(context.Background(), unlockIntent(), types.ChainID(1),
			wallettest.NewSession(types.ChainArcTestnet))
		assert.ErrorIs(t, err, types.ErrUnsupportedChain)
	})

	t.Run("approval declined stops before pay", func(t *testing.T) {
		session := wallettest.NewSession(types.ChainArcTestnet)
		session.OnSend = func(wallettest.Tx) error { return wallettest.ErrRejected }

		_, err := newService(t, router).Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)
		assert.True(t, types.IsUserRejection(err))
		assert.Empty(t, session.Sent)
	})

	t.Run("approval reverted stops before pay", func(t *testing.T) {
		session := wallettest.NewSession(types.ChainArcTestnet)
		session.Reverted["approve"] = true

		_, err := newService(t, router).Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)
		assert.ErrorIs(t, err, types.ErrOnChainRevert)
		assert.Equal(t, []string{"approve"}, session.Methods())
	})

	t.Run("chain switch declined", func(t *testing.T) {
		session := wallettest.NewSession(types.ChainBaseSepolia)
		session.OnSwitch = func(types.ChainID) error { return wallettest.ErrRejected }

		_, err := newService(t, router).Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, session)
		assert.True(t, types.IsUserRejection(err))
	})
}

func TestSettleSurvivesLedgerFailure(t *testing.T) {
	s := newService(t, router, WithRecorder(failingRecorder{}))

	res, err := s.Settle(context.Background(), unlockIntent(), types.ChainArcTestnet, wallettest.NewSession(types.ChainArcTestnet))
	require.NoError(t, err)
	assert.True(t, res.RecordPending)
	assert.NotEmpty(t, res.RecordID)
}

func TestNewSettlementServiceRejectsUnknownHome(t *testing.T) {
	_, err := NewSettlementService(registry.Default(), types.ChainID(1), router)
	assert.ErrorIs(t, err, types.ErrUnsupportedChain)
}
