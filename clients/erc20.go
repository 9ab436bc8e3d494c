package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ERC20 reads a token contract.
type ERC20 struct {
	address common.Address
	caller  Caller
}

func NewERC20(token common.Address, caller Caller) *ERC20 {
	return &ERC20{address: token, caller: caller}
}

func (e *ERC20) Address() common.Address { return e.address }

func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return e.uint256(ctx, "balanceOf", owner)
}

func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return e.uint256(ctx, "allowance", owner, spender)
}

func (e *ERC20) uint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := call(ctx, e.caller, ERC20ABI, e.address, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output %T", method, out[0])
	}
	return v, nil
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("transfer", to, amount)
}

// TransferEvent is a decoded ERC-20 Transfer log.
type TransferEvent struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// UnpackTransferLog decodes log if it is an ERC-20 Transfer.
func UnpackTransferLog(log *ethtypes.Log) (*TransferEvent, bool) {
	ev := ERC20ABI.Events["Transfer"]
	if len(log.Topics) != 3 || log.Topics[0] != ev.ID {
		return nil, false
	}
	vals, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(vals) != 1 {
		return nil, false
	}
	value, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}
	return &TransferEvent{
		Token: log.Address,
		From:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:    common.BytesToAddress(log.Topics[2].Bytes()),
		Value: value,
	}, true
}

// TransferLog builds an ERC-20 Transfer log.
func TransferLog(token, from, to common.Address, value *big.Int) (*ethtypes.Log, error) {
	data, err := ERC20ABI.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	if err != nil {
		return nil, err
	}
	return &ethtypes.Log{
		Address: token,
		Topics: []common.Hash{
			ERC20ABI.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}, nil
}
