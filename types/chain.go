package types

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ChainID is the native EVM chain id of a network.
type ChainID uint64

// DomainID is the Circle Gateway domain of a network. Domain 0 (Ethereum)
// is a real domain, so lookups must report absence separately.
type DomainID uint32

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// Well-known chain ids of the supported Gateway testnets.
const (
	ChainEthereumSepolia ChainID = 11155111
	ChainAvalancheFuji   ChainID = 43113
	ChainOPSepolia       ChainID = 11155420
	ChainArbitrumSepolia ChainID = 421614
	ChainBaseSepolia     ChainID = 84532
	ChainPolygonAmoy     ChainID = 80002
	ChainUnichainSepolia ChainID = 1301
	ChainArcTestnet      ChainID = 5042002
)

// ChainProfile is the static registry entry for one chain.
type ChainProfile struct {
	ChainID       ChainID         `json:"chainId" mapstructure:"chain_id"`
	Name          string          `json:"name" mapstructure:"name"`
	Domain        DomainID        `json:"domain" mapstructure:"domain"`
	USDC          common.Address  `json:"usdc" mapstructure:"usdc"`
	GasFeeUSD     decimal.Decimal `json:"gasFeeUsd" mapstructure:"gas_fee_usd"`
	GatewayWallet common.Address  `json:"gatewayWallet" mapstructure:"gateway_wallet"`
	GatewayMinter common.Address  `json:"gatewayMinter" mapstructure:"gateway_minter"`
	Testnet       bool            `json:"testnet" mapstructure:"testnet"`
}

// ChainBalance is a USDC balance held on one chain, in USD.
type ChainBalance struct {
	ChainID ChainID         `json:"chainId"`
	Amount  decimal.Decimal `json:"amount"`
}
