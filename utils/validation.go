package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateAmount parses a positive USD amount with at most six decimals.
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if strings.TrimSpace(amount) == "" {
		return decimal.Zero, fieldError("amount", "cannot be empty")
	}

	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, types.WrapError(types.ErrCodeInvalidRequest, 0, err, "invalid amount format")
	}
	if !dec.IsPositive() {
		return decimal.Zero, fieldError("amount", "must be positive")
	}
	if !dec.Equal(dec.Truncate(types.USDCDecimals)) {
		return decimal.Zero, fieldError("amount", "%s has more than %d decimals", amount, types.USDCDecimals)
	}
	return dec, nil
}

// ValidateBigInt checks if a string is a valid base-10 integer
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer format")
	}
	return n, nil
}

// ParseTxHash validates a 0x-prefixed 32-byte transaction hash.
func ParseTxHash(hash string) (common.Hash, error) {
	if !txHashPattern.MatchString(hash) {
		return common.Hash{}, fieldError("txHash", "%q is not a 32-byte hex hash", hash)
	}
	return common.HexToHash(hash), nil
}

// ParseAddress parses a hex address. The zero address is reported as
// unconfigured rather than invalid.
func ParseAddress(address, field string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fieldError(field, "%q is not an EVM address", address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return common.Address{}, types.NewError(types.ErrCodeUnconfiguredAddress, 0, "%s is the zero address", field)
	}
	return addr, nil
}
