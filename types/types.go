package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TransferSpecVersion is the Gateway transfer spec version this module signs.
const TransferSpecVersion uint32 = 1

// TransferSpec is the inner struct of a burn intent. Addresses are kept as
// 20-byte values here and padded to bytes32 only when encoded.
type TransferSpec struct {
	Version              uint32
	SourceDomain         DomainID
	DestinationDomain    DomainID
	SourceContract       common.Address
	DestinationContract  common.Address
	SourceToken          common.Address
	DestinationToken     common.Address
	SourceDepositor      common.Address
	DestinationRecipient common.Address
	SourceSigner         common.Address
	DestinationCaller    common.Address
	Value                *big.Int
	Salt                 [32]byte
	HookData             []byte
}

// BurnIntent authorizes Gateway to burn Spec.Value on the source domain and
// mint it on the destination domain. Value is net of MaxFee.
type BurnIntent struct {
	MaxBlockHeight *big.Int
	MaxFee         *big.Int
	Spec           TransferSpec
}

// PaymentKind is what a PaymentIntent buys.
type PaymentKind string

const (
	PaymentUnlock       PaymentKind = "unlock"
	PaymentSubscription PaymentKind = "subscription"
	PaymentTip          PaymentKind = "tip"
	PaymentRecurringTip PaymentKind = "recurringTip"
)

func (k PaymentKind) Valid() bool {
	switch k {
	case PaymentUnlock, PaymentSubscription, PaymentTip, PaymentRecurringTip:
		return true
	}
	return false
}

// PaymentIntent is produced by the UI/agent layer and handed, unchanged, to a
// settlement path.
type PaymentIntent struct {
	Kind           PaymentKind     `json:"kind" validate:"required,oneof=unlock subscription tip recurringTip"`
	AmountUSD      decimal.Decimal `json:"amountUsd" validate:"required,usdc_amount"`
	CreatorID      string          `json:"creatorId" validate:"required"`
	CreatorAddress string          `json:"creatorAddress" validate:"required,eth_addr"`
	PostID         string          `json:"postId,omitempty" validate:"required_if=Kind unlock"`
	Title          string          `json:"title,omitempty"`
}

// TransferRequest asks the orchestrator to move AmountUSD from SourceChain to
// Recipient on the destination chain.
type TransferRequest struct {
	SourceChain ChainID
	AmountUSD   decimal.Decimal
	Recipient   common.Address
}

// TransferResult carries what the destination chain needs for gatewayMint.
type TransferResult struct {
	TransferID       string          `json:"transferId,omitempty"`
	Attestation      []byte          `json:"attestation"`
	Signature        []byte          `json:"signature"`
	SourceChain      ChainID         `json:"sourceChain"`
	DestinationChain ChainID         `json:"destinationChain"`
	Gross            *big.Int        `json:"gross"`
	Fee              *big.Int        `json:"fee"`
	Net              *big.Int        `json:"net"`
	Salt             [32]byte        `json:"salt"`
	FeeUSD           decimal.Decimal `json:"feeUsd"`
}

// StepStatus is the state of one consolidation step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepBridging  StepStatus = "bridging"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// ConsolidationStep tracks one source chain inside a consolidation batch.
type ConsolidationStep struct {
	ChainID      ChainID         `json:"chainId"`
	ChainName    string          `json:"chainName"`
	Balance      decimal.Decimal `json:"balance"`
	Status       StepStatus      `json:"status"`
	Error        string          `json:"error,omitempty"`
	TxHash       string          `json:"txHash,omitempty"`
	UserRejected bool            `json:"userRejected,omitempty"`
}

// SettlementResult is returned by the PayRouter settlement path.
type SettlementResult struct {
	TxHash        string    `json:"txHash"`
	ApprovalHash  string    `json:"approvalHash,omitempty"`
	ChainID       ChainID   `json:"chainId"`
	Amount        *big.Int  `json:"amount"`
	SKU           string    `json:"sku,omitempty"`
	ViaRouter     bool      `json:"viaRouter"`
	FeeBps        uint16    `json:"feeBps"`
	Fee           *big.Int  `json:"fee"`
	SettledAt     time.Time `json:"settledAt"`
	RecordID      string    `json:"recordId,omitempty"`
	RecordPending bool      `json:"recordPending,omitempty"`
}

// VerificationResult reports whether an on-chain payment matches an intent.
type VerificationResult struct {
	IsValid       bool     `json:"isValid"`
	InvalidReason string   `json:"invalidReason,omitempty"`
	TxHash        string   `json:"txHash"`
	Payer         string   `json:"payer,omitempty"`
	Recipient     string   `json:"recipient,omitempty"`
	Amount        *big.Int `json:"amount,omitempty"`
	SKU           string   `json:"sku,omitempty"`
	FeeBps        uint16   `json:"feeBps,omitempty"`
}
