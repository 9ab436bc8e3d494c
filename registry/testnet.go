package registry

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

func testnet(id types.ChainID, name string, domain types.DomainID, usdc, gas string) types.ChainProfile {
	return types.ChainProfile{
		ChainID:       id,
		Name:          name,
		Domain:        domain,
		USDC:          common.HexToAddress(usdc),
		GasFeeUSD:     decimal.RequireFromString(gas),
		GatewayWallet: TestnetGatewayWallet,
		GatewayMinter: TestnetGatewayMinter,
		Testnet:       true,
	}
}

// TestnetProfiles is the built-in Gateway testnet table. Gas fees are the
// empirically observed values and are expected to be overridden by config.
func TestnetProfiles() []types.ChainProfile {
	return []types.ChainProfile{
		testnet(types.ChainEthereumSepolia, "Ethereum Sepolia", 0, "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", "2.00"),
		testnet(types.ChainAvalancheFuji, "Avalanche Fuji", 1, "0x5425890298aed601595a70AB815c96711a31Bc65", "0.02"),
		testnet(types.ChainOPSepolia, "OP Sepolia", 2, "0x5fd84259d66Cd46123540766Be93DFE6D43130D7", "0.0015"),
		testnet(types.ChainArbitrumSepolia, "Arbitrum Sepolia", 3, "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", "0.01"),
		testnet(types.ChainBaseSepolia, "Base Sepolia", 6, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "0.01"),
		testnet(types.ChainPolygonAmoy, "Polygon Amoy", 7, "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582", "0.0015"),
		testnet(types.ChainUnichainSepolia, "Unichain Sepolia", 10, "0x31d0220469e10c4E71834a79b1f276d740d3768F", "0.001"),
		testnet(types.ChainArcTestnet, "Arc Testnet", 26, "0x3600000000000000000000000000000000000000", "0.01"),
	}
}

// Default returns a Registry holding the testnet table.
func Default() *Registry {
	r, err := New(TestnetProfiles(), DefaultGasFeeUSD)
	if err != nil {
		panic("registry: invalid built-in testnet table: " + err.Error())
	}
	return r
}
