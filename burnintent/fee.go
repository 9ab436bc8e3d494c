package burnintent

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

// FeePolicy derives the burn intent fee ceiling from a chain's gas fee.
// The attestation service rejects intents whose maxFee is below what it
// expects, so the ceiling is padded by whichever of Buffer or Multiplier
// yields more.
type FeePolicy struct {
	Buffer     decimal.Decimal `mapstructure:"buffer_usd"`
	Multiplier decimal.Decimal `mapstructure:"multiplier"`
}

// DefaultFeePolicy returns the empirically observed margins.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		Buffer:     decimal.RequireFromString("0.0005"),
		Multiplier: decimal.RequireFromString("1.05"),
	}
}

func (p FeePolicy) Validate() error {
	if p.Buffer.IsNegative() {
		return types.NewError(types.ErrCodeInvalidRequest, 0, "fee buffer %s is negative", p.Buffer)
	}
	if p.Multiplier.LessThan(decimal.NewFromInt(1)) {
		return types.NewError(types.ErrCodeInvalidRequest, 0, "fee multiplier %s is below 1", p.Multiplier)
	}
	return nil
}

// TotalFee returns max(gas+buffer, gas*multiplier) in USD.
func (p FeePolicy) TotalFee(gasFeeUSD decimal.Decimal) decimal.Decimal {
	return decimal.Max(gasFeeUSD.Add(p.Buffer), gasFeeUSD.Mul(p.Multiplier))
}

// TotalFeeUnits is TotalFee in USDC units, rounded up.
func (p FeePolicy) TotalFeeUnits(gasFeeUSD decimal.Decimal) *big.Int {
	return types.CeilUSDCUnits(p.TotalFee(gasFeeUSD))
}

// NetAmount returns gross-fee. The fee must be strictly smaller than gross.
func NetAmount(gross, fee *big.Int, chain types.ChainID) (*big.Int, error) {
	if gross == nil || gross.Cmp(fee) <= 0 {
		return nil, types.NewError(types.ErrCodeAmountTooSmall, chain,
			"amount %s USDC does not cover the %s USDC fee",
			types.FromUSDCUnits(gross).String(), types.FromUSDCUnits(fee).String())
	}
	return new(big.Int).Sub(gross, fee), nil
}
