package burnintent

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils/eip712"
)

const primaryType = "BurnIntent"

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	},
	"TransferSpec": {
		{Name: "version", Type: "uint32"},
		{Name: "sourceDomain", Type: "uint32"},
		{Name: "destinationDomain", Type: "uint32"},
		{Name: "sourceContract", Type: "bytes32"},
		{Name: "destinationContract", Type: "bytes32"},
		{Name: "sourceToken", Type: "bytes32"},
		{Name: "destinationToken", Type: "bytes32"},
		{Name: "sourceDepositor", Type: "bytes32"},
		{Name: "destinationRecipient", Type: "bytes32"},
		{Name: "sourceSigner", Type: "bytes32"},
		{Name: "destinationCaller", Type: "bytes32"},
		{Name: "value", Type: "uint256"},
		{Name: "salt", Type: "bytes32"},
		{Name: "hookData", Type: "bytes"},
	},
	"BurnIntent": {
		{Name: "maxBlockHeight", Type: "uint256"},
		{Name: "maxFee", Type: "uint256"},
		{Name: "spec", Type: "TransferSpec"},
	},
}

// WireTransferSpec is the JSON form of a TransferSpec expected by the
// Gateway API: addresses padded to bytes32, uint256 as decimal strings.
type WireTransferSpec struct {
	Version              uint32 `json:"version"`
	SourceDomain         uint32 `json:"sourceDomain"`
	DestinationDomain    uint32 `json:"destinationDomain"`
	SourceContract       string `json:"sourceContract"`
	DestinationContract  string `json:"destinationContract"`
	SourceToken          string `json:"sourceToken"`
	DestinationToken     string `json:"destinationToken"`
	SourceDepositor      string `json:"sourceDepositor"`
	DestinationRecipient string `json:"destinationRecipient"`
	SourceSigner         string `json:"sourceSigner"`
	DestinationCaller    string `json:"destinationCaller"`
	Value                string `json:"value"`
	Salt                 string `json:"salt"`
	HookData             string `json:"hookData"`
}

type WireBurnIntent struct {
	MaxBlockHeight string           `json:"maxBlockHeight"`
	MaxFee         string           `json:"maxFee"`
	Spec           WireTransferSpec `json:"spec"`
}

// WireMessage converts an intent to its Gateway API JSON shape.
func WireMessage(intent *types.BurnIntent) WireBurnIntent {
	s := intent.Spec
	return WireBurnIntent{
		MaxBlockHeight: intent.MaxBlockHeight.String(),
		MaxFee:         intent.MaxFee.String(),
		Spec: WireTransferSpec{
			Version:              s.Version,
			SourceDomain:         uint32(s.SourceDomain),
			DestinationDomain:    uint32(s.DestinationDomain),
			SourceContract:       eip712.AddressToBytes32Hex(s.SourceContract),
			DestinationContract:  eip712.AddressToBytes32Hex(s.DestinationContract),
			SourceToken:          eip712.AddressToBytes32Hex(s.SourceToken),
			DestinationToken:     eip712.AddressToBytes32Hex(s.DestinationToken),
			SourceDepositor:      eip712.AddressToBytes32Hex(s.SourceDepositor),
			DestinationRecipient: eip712.AddressToBytes32Hex(s.DestinationRecipient),
			SourceSigner:         eip712.AddressToBytes32Hex(s.SourceSigner),
			DestinationCaller:    eip712.AddressToBytes32Hex(s.DestinationCaller),
			Value:                s.Value.String(),
			Salt:                 "0x" + hex.EncodeToString(s.Salt[:]),
			HookData:             hexutil.Encode(s.HookData),
		},
	}
}

func (w WireTransferSpec) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"version":              fmt.Sprint(w.Version),
		"sourceDomain":         fmt.Sprint(w.SourceDomain),
		"destinationDomain":    fmt.Sprint(w.DestinationDomain),
		"sourceContract":       w.SourceContract,
		"destinationContract":  w.DestinationContract,
		"sourceToken":          w.SourceToken,
		"destinationToken":     w.DestinationToken,
		"sourceDepositor":      w.SourceDepositor,
		"destinationRecipient": w.DestinationRecipient,
		"sourceSigner":         w.SourceSigner,
		"destinationCaller":    w.DestinationCaller,
		"value":                w.Value,
		"salt":                 w.Salt,
		"hookData":             w.HookData,
	}
}

// TypedData returns the EIP-712 payload a wallet signs for intent.
func TypedData(intent *types.BurnIntent) apitypes.TypedData {
	wire := WireMessage(intent)
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    eip712.GatewayDomainName,
			Version: eip712.GatewayDomainVersion,
		},
		Message: apitypes.TypedDataMessage{
			"maxBlockHeight": wire.MaxBlockHeight,
			"maxFee":         wire.MaxFee,
			"spec":           map[string]interface{}(wire.Spec.message()),
		},
	}
}

// Hash returns the EIP-712 digest of intent under the Gateway domain.
func Hash(intent *types.BurnIntent) (common.Hash, error) {
	td := TypedData(intent)
	structHash, err := td.HashStruct(primaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash burn intent: %w", err)
	}
	return eip712.TypedDataHash(eip712.GatewayDomainSeparator(), common.BytesToHash(structHash)), nil
}

// RecoverSigner returns the address that produced sig over intent.
func RecoverSigner(intent *types.BurnIntent, sig []byte) (common.Address, error) {
	digest, err := Hash(intent)
	if err != nil {
		return common.Address{}, err
	}
	return eip712.RecoverSigner(digest, sig)
}
