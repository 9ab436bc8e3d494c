// Package ledger builds the records a settled payment leaves behind and
// hands them to an external store.
package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

type RecordStatus string

const (
	StatusCompleted RecordStatus = "completed"
	StatusRefunded  RecordStatus = "refunded"
)

// TransactionRecord is one settled payment.
type TransactionRecord struct {
	ID             string            `json:"id"`
	Kind           types.PaymentKind `json:"kind"`
	SKU            string            `json:"sku,omitempty"`
	Buyer          string            `json:"buyer"`
	CreatorID      string            `json:"creatorId"`
	CreatorAddress string            `json:"creatorAddress"`
	PostID         string            `json:"postId,omitempty"`
	Title          string            `json:"title,omitempty"`
	AmountUSD      decimal.Decimal   `json:"amountUsd"`
	AmountUnits    string            `json:"amountUnits"`
	ChainID        types.ChainID     `json:"chainId"`
	TxHash         string            `json:"txHash"`
	ApprovalHash   string            `json:"approvalHash,omitempty"`
	ViaRouter      bool              `json:"viaRouter"`
	FeeBps         uint16            `json:"feeBps"`
	FeeUnits       string            `json:"feeUnits"`
	Status         RecordStatus      `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// RefundRecord reverses a TransactionRecord. The refund transfer itself
// happens elsewhere; this only records it.
type RefundRecord struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	CreatorID     string          `json:"creatorId"`
	Buyer         string          `json:"buyer"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	ChainID       types.ChainID   `json:"chainId"`
	TxHash        string          `json:"txHash"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BridgeRecord is one Gateway transfer minted on the destination chain.
type BridgeRecord struct {
	ID               string          `json:"id"`
	TransferID       string          `json:"transferId,omitempty"`
	Depositor        string          `json:"depositor"`
	Recipient        string          `json:"recipient"`
	SourceChain      types.ChainID   `json:"sourceChain"`
	DestinationChain types.ChainID   `json:"destinationChain"`
	GrossUnits       string          `json:"grossUnits"`
	FeeUnits         string          `json:"feeUnits"`
	NetUnits         string          `json:"netUnits"`
	FeeUSD           decimal.Decimal `json:"feeUsd"`
	MintTxHash       string          `json:"mintTxHash"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// NewTransactionRecord describes a settlement of intent paid by buyer.
func NewTransactionRecord(intent types.PaymentIntent, buyer string, res *types.SettlementResult) TransactionRecord {
	units := orZero(res.Amount)

	return TransactionRecord{
		ID:             uuid.NewString(),
		Kind:           intent.Kind,
		SKU:            res.SKU,
		Buyer:          buyer,
		CreatorID:      intent.CreatorID,
		CreatorAddress: utils.NormalizeAddress(intent.CreatorAddress),
		PostID:         intent.PostID,
		Title:          intent.Title,
		AmountUSD:      intent.AmountUSD,
		AmountUnits:    units.String(),
		ChainID:        res.ChainID,
		TxHash:         res.TxHash,
		ApprovalHash:   res.ApprovalHash,
		ViaRouter:      res.ViaRouter,
		FeeBps:         res.FeeBps,
		FeeUnits:       orZero(res.Fee).String(),
		Status:         StatusCompleted,
		CreatedAt:      res.SettledAt.UTC(),
	}
}

// NewBridgeRecord describes res once its mint landed in mintTx.
func NewBridgeRecord(res *types.TransferResult, depositor, recipient common.Address, mintTx common.Hash, at time.Time) BridgeRecord {
	return BridgeRecord{
		ID:               uuid.NewString(),
		TransferID:       res.TransferID,
		Depositor:        depositor.Hex(),
		Recipient:        recipient.Hex(),
		SourceChain:      res.SourceChain,
		DestinationChain: res.DestinationChain,
		GrossUnits:       orZero(res.Gross).String(),
		FeeUnits:         orZero(res.Fee).String(),
		NetUnits:         orZero(res.Net).String(),
		FeeUSD:           res.FeeUSD,
		MintTxHash:       mintTx.Hex(),
		CreatedAt:        at.UTC(),
	}
}

// NewRefundRecord records that tx was refunded in refundTx.
func NewRefundRecord(tx TransactionRecord, refundTx, reason string) RefundRecord {
	return RefundRecord{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		CreatorID:     tx.CreatorID,
		Buyer:         tx.Buyer,
		AmountUSD:     tx.AmountUSD,
		ChainID:       tx.ChainID,
		TxHash:        refundTx,
		Reason:        reason,
		CreatedAt:     time.Now().UTC(),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
