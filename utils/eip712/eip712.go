package eip712

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Gateway signs burn intents under a domain with only name and version;
// there is no chainId or verifyingContract because one intent may be
// validated on any domain.
const (
	GatewayDomainName    = "GatewayWallet"
	GatewayDomainVersion = "1"
)

// Type strings. Order and spelling must match the attestation service
// exactly or it recovers a different signer.
const (
	DomainType       = "EIP712Domain(string name,string version)"
	TransferSpecType = "TransferSpec(uint32 version,uint32 sourceDomain,uint32 destinationDomain,bytes32 sourceContract,bytes32 destinationContract,bytes32 sourceToken,bytes32 destinationToken,bytes32 sourceDepositor,bytes32 destinationRecipient,bytes32 sourceSigner,bytes32 destinationCaller,uint256 value,bytes32 salt,bytes hookData)"
	BurnIntentType   = "BurnIntent(uint256 maxBlockHeight,uint256 maxFee,TransferSpec spec)"
)

var (
	domainTypeHash       = crypto.Keccak256Hash([]byte(DomainType))
	transferSpecTypeHash = crypto.Keccak256Hash([]byte(TransferSpecType))
	// referenced struct types are appended after the primary type
	burnIntentTypeHash = crypto.Keccak256Hash([]byte(BurnIntentType + TransferSpecType))
)

func TransferSpecTypeHash() common.Hash { return transferSpecTypeHash }
func BurnIntentTypeHash() common.Hash   { return burnIntentTypeHash }

// keccak256ABI hashes the concatenation of already 32-byte aligned words,
// which is what abi.encode produces for static EIP-712 members.
func keccak256ABI(parts ...[]byte) common.Hash {
	joined := []byte{}
	for _, p := range parts {
		joined = append(joined, p...)
	}
	return crypto.Keccak256Hash(joined)
}

// AddressToBytes32 left-pads a 20-byte address into a bytes32 word.
func AddressToBytes32(a common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], a.Bytes())
	return out
}

// AddressToBytes32Hex is AddressToBytes32 as a 0x-prefixed hex string.
func AddressToBytes32Hex(a common.Address) string {
	b := AddressToBytes32(a)
	return "0x" + hex.EncodeToString(b[:])
}

// Bytes32ToAddress reverses AddressToBytes32. The upper 12 bytes must be zero.
func Bytes32ToAddress(b [32]byte) (common.Address, error) {
	for _, v := range b[:12] {
		if v != 0 {
			return common.Address{}, errors.New("bytes32 value is not a padded address")
		}
	}
	return common.BytesToAddress(b[12:]), nil
}

// HexToBytes32 converts hex (with or without 0x) to a 32-byte array.
// Shorter inputs are left-padded; longer inputs are rejected.
func HexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) > 32 {
		return out, fmt.Errorf("value is %d bytes, want at most 32", len(b))
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// GatewayDomainSeparator computes
// keccak256(abi.encode(domainTypeHash, keccak256(name), keccak256(version))).
func GatewayDomainSeparator() common.Hash {
	return keccak256ABI(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(GatewayDomainName)),
		crypto.Keccak256([]byte(GatewayDomainVersion)),
	)
}

// TypedDataHash returns keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	prefix := []byte{0x19, 0x01}
	return crypto.Keccak256Hash(append(append(prefix, domainSeparator.Bytes()...), structHash.Bytes()...))
}

// RecoverSigner recovers the address that signed digest.
// sig must be 65 bytes (R||S||V). V may be 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// copy to avoid mutating caller slice
	s := make([]byte, crypto.SignatureLength)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
