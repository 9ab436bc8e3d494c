package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GatewayWallet reads the Gateway escrow contract on a source chain.
type GatewayWallet struct {
	address common.Address
	caller  Caller
}

func NewGatewayWallet(address common.Address, caller Caller) *GatewayWallet {
	return &GatewayWallet{address: address, caller: caller}
}

// AvailableBalance returns the depositor's unlocked escrow balance of token.
func (g *GatewayWallet) AvailableBalance(ctx context.Context, token, depositor common.Address) (*big.Int, error) {
	out, err := call(ctx, g.caller, GatewayWalletABI, g.address, "availableBalance", token, depositor)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("availableBalance: unexpected output %T", out[0])
	}
	return v, nil
}

func PackDeposit(token common.Address, value *big.Int) ([]byte, error) {
	return GatewayWalletABI.Pack("deposit", token, value)
}

func PackGatewayMint(attestation, signature []byte) ([]byte, error) {
	return GatewayMinterABI.Pack("gatewayMint", attestation, signature)
}
