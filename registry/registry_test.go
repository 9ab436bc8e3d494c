package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/usdcflow/types"
)

func TestDomainZeroIsDistinctFromUnregistered(t *testing.T) {
	r := Default()

	domain, err := r.Domain(types.ChainEthereumSepolia)
	require.NoError(t, err)
	assert.Equal(t, types.DomainID(0), domain)

	_, err = r.Domain(types.ChainID(999999))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedChain)
}

func TestDefaultTable(t *testing.T) {
	r := Default()

	expected := map[types.ChainID]types.DomainID{
		types.ChainEthereumSepolia: 0,
		types.ChainAvalancheFuji:   1,
		types.ChainOPSepolia:       2,
		types.ChainArbitrumSepolia: 3,
		types.ChainBaseSepolia:     6,
		types.ChainPolygonAmoy:     7,
		types.ChainUnichainSepolia: 10,
		types.ChainArcTestnet:      26,
	}
	for chain, want := range expected {
		got, err := r.Domain(chain)
		require.NoError(t, err)
		assert.Equal(t, want, got, chain.String())
	}

	usdc, err := r.USDCAddress(types.ChainBaseSepolia)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), usdc)

	_, err = r.USDCAddress(types.ChainID(1))
	assert.ErrorIs(t, err, types.ErrUnsupportedChain)

	profiles := r.Profiles()
	require.Len(t, profiles, len(expected))
	for i := 1; i < len(profiles); i++ {
		assert.Less(t, profiles[i-1].Domain, profiles[i].Domain)
	}
}

func TestGasFeeFallsBackToDefault(t *testing.T) {
	r := Default()

	assert.True(t, r.GasFee(types.ChainEthereumSepolia).Equal(decimal.RequireFromString("2")))
	assert.True(t, r.GasFee(types.ChainID(424242)).Equal(DefaultGasFeeUSD))
}

func TestNewRejectsInvalidTables(t *testing.T) {
	good := TestnetProfiles()[0]

	t.Run("duplicate chain", func(t *testing.T) {
		_, err := New([]types.ChainProfile{good, good}, DefaultGasFeeUSD)
		assert.ErrorIs(t, err, types.ErrInvalidRequest)
	})

	t.Run("missing usdc", func(t *testing.T) {
		p := good
		p.USDC = common.Address{}
		_, err := New([]types.ChainProfile{p}, DefaultGasFeeUSD)
		assert.ErrorIs(t, err, types.ErrUnconfiguredAddress)
	})

	t.Run("negative fee", func(t *testing.T) {
		p := good
		p.GasFeeUSD = decimal.RequireFromString("-0.1")
		_, err := New([]types.ChainProfile{p}, DefaultGasFeeUSD)
		assert.ErrorIs(t, err, types.ErrInvalidRequest)
	})
}

func TestMerge(t *testing.T) {
	base := Default()

	merged, err := Merge(base, []types.ChainProfile{
		{ChainID: types.ChainBaseSepolia, Domain: 6, GasFeeUSD: decimal.RequireFromString("0.05")},
		{ChainID: 31337, Name: "Local", Domain: 99, USDC: common.HexToAddress("0x00000000000000000000000000000000000000aa")},
	})
	require.NoError(t, err)

	assert.True(t, merged.GasFee(types.ChainBaseSepolia).Equal(decimal.RequireFromString("0.05")))
	usdc, err := merged.USDCAddress(types.ChainBaseSepolia)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), usdc)

	local, err := merged.ByDomain(99)
	require.NoError(t, err)
	assert.Equal(t, "Local", local.Name)

	// base is untouched
	assert.False(t, base.Supports(31337))
	assert.True(t, base.GasFee(types.ChainBaseSepolia).Equal(decimal.RequireFromString("0.01")))
}
