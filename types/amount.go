package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the token precision on every supported chain.
const USDCDecimals = 6

// ToUSDCUnits converts a USD amount to integer token units. The amount is
// first fixed to 6 decimals so the client display and the on-chain value
// round the same way.
func ToUSDCUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, NewError(ErrCodeInvalidRequest, 0, "amount %s is negative", amount.String())
	}
	fixed, err := decimal.NewFromString(amount.StringFixed(USDCDecimals))
	if err != nil {
		return nil, WrapError(ErrCodeInvalidRequest, 0, err, "amount %s", amount.String())
	}
	return fixed.Shift(USDCDecimals).BigInt(), nil
}

// CeilUSDCUnits converts a USD amount to token units, rounding any
// sub-unit remainder up. Used for fees so the ceiling never undershoots.
func CeilUSDCUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(USDCDecimals).Ceil().BigInt()
}

// FromUSDCUnits converts token units back to USD.
func FromUSDCUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -USDCDecimals)
}
