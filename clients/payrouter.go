package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PayRouter reads the creator payment router.
type PayRouter struct {
	address common.Address
	caller  Caller
}

func NewPayRouter(address common.Address, caller Caller) *PayRouter {
	return &PayRouter{address: address, caller: caller}
}

// FeeBps returns the platform fee in basis points.
func (p *PayRouter) FeeBps(ctx context.Context) (uint16, error) {
	out, err := call(ctx, p.caller, PayRouterABI, p.address, "feeBps")
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("feeBps: unexpected output %T", out[0])
	}
	return v, nil
}

func PackPay(sku [32]byte, creator common.Address, amount *big.Int) ([]byte, error) {
	return PayRouterABI.Pack("pay", sku, creator, amount)
}

// PaymentEvent is a decoded PayRouter Payment log.
type PaymentEvent struct {
	Router  common.Address
	SKU     common.Hash
	Buyer   common.Address
	Creator common.Address
	Amount  *big.Int
	FeeBps  uint16
}

// UnpackPaymentLog decodes log if it is a PayRouter Payment.
func UnpackPaymentLog(log *ethtypes.Log) (*PaymentEvent, bool) {
	ev := PayRouterABI.Events["Payment"]
	if len(log.Topics) != 4 || log.Topics[0] != ev.ID {
		return nil, false
	}
	vals, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(vals) != 2 {
		return nil, false
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}
	feeBps, ok := vals[1].(uint16)
	if !ok {
		return nil, false
	}
	return &PaymentEvent{
		Router:  log.Address,
		SKU:     log.Topics[1],
		Buyer:   common.BytesToAddress(log.Topics[2].Bytes()),
		Creator: common.BytesToAddress(log.Topics[3].Bytes()),
		Amount:  amount,
		FeeBps:  feeBps,
	}, true
}

// PaymentLog builds the log a router emits for a payment. Used to
// reconcile against receipts and in tests.
func PaymentLog(router common.Address, ev PaymentEvent) (*ethtypes.Log, error) {
	data, err := PayRouterABI.Events["Payment"].Inputs.NonIndexed().Pack(ev.Amount, ev.FeeBps)
	if err != nil {
		return nil, err
	}
	return &ethtypes.Log{
		Address: router,
		Topics: []common.Hash{
			PayRouterABI.Events["Payment"].ID,
			ev.SKU,
			common.BytesToHash(ev.Buyer.Bytes()),
			common.BytesToHash(ev.Creator.Bytes()),
		},
		Data: data,
	}, nil
}
