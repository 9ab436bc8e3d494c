package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

const gatewayWalletABIJSON = `[
	{"inputs":[{"name":"token","type":"address"},{"name":"depositor","type":"address"}],"name":"availableBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"value","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const gatewayMinterABIJSON = `[
	{"inputs":[{"name":"attestationPayload","type":"bytes"},{"name":"signature","type":"bytes"}],"name":"gatewayMint","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const payRouterABIJSON = `[
	{"inputs":[{"name":"sku","type":"bytes32"},{"name":"creator","type":"address"},{"name":"amountUSDC","type":"uint256"}],"name":"pay","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"feeBps","outputs":[{"name":"","type":"uint16"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sku","type":"bytes32"},{"indexed":true,"name":"buyer","type":"address"},{"indexed":true,"name":"creator","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"feeBps","type":"uint16"}],"name":"Payment","type":"event"}
]`

var (
	ERC20ABI         = mustParseABI(erc20ABIJSON)
	GatewayWalletABI = mustParseABI(gatewayWalletABIJSON)
	GatewayMinterABI = mustParseABI(gatewayMinterABIJSON)
	PayRouterABI     = mustParseABI(payRouterABIJSON)
)

// ErrNoCode is returned when a call hits an address without a contract.
var ErrNoCode = errors.New("no contract code at address")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("clients: invalid ABI: %v", err))
	}
	return parsed
}

// MethodBySelector finds a method of any bound contract by calldata prefix.
func MethodBySelector(data []byte) (*abi.Method, bool) {
	if len(data) < 4 {
		return nil, false
	}
	for _, contract := range []abi.ABI{ERC20ABI, GatewayWalletABI, GatewayMinterABI, PayRouterABI} {
		for _, m := range contract.Methods {
			if bytes.Equal(m.ID, data[:4]) {
				method := m
				return &method, true
			}
		}
	}
	return nil, false
}

// DecodeCall unpacks calldata into the method and its arguments.
func DecodeCall(data []byte) (string, []interface{}, error) {
	m, ok := MethodBySelector(data)
	if !ok {
		return "", nil, fmt.Errorf("unknown selector %x", data[:min(4, len(data))])
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("unpack %s: %w", m.Name, err)
	}
	return m.Name, args, nil
}

func call(ctx context.Context, caller Caller, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), ErrNoCode)
	}

	return contract.Unpack(method, out)
}
