// Package sku derives the bytes32 purchase identifiers that PayRouter
// indexes Payment events by. The canonical strings are part of the on-chain
// history: changing any format breaks decoding of past events.
package sku

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

const (
	prefixPost          = "post:"
	subscriptionMonthly = "sub:monthly"
	prefixTip           = "tip:"
	prefixRecurringTip  = "recurringTip:"
)

// Hash returns keccak256 of the canonical string.
func Hash(canonical string) common.Hash {
	return crypto.Keccak256Hash([]byte(canonical))
}

func Unlock(postID string) common.Hash {
	return Hash(prefixPost + postID)
}

func Subscription() common.Hash {
	return Hash(subscriptionMonthly)
}

func Tip(amountUSD decimal.Decimal) common.Hash {
	return Hash(prefixTip + amountUSD.StringFixed(2))
}

func RecurringTip(creatorID string, amountUSD decimal.Decimal) common.Hash {
	return Hash(prefixRecurringTip + creatorID + ":" + amountUSD.StringFixed(2))
}

// Canonical returns the pre-image string for an intent.
func Canonical(intent types.PaymentIntent) (string, error) {
	switch intent.Kind {
	case types.PaymentUnlock:
		if strings.TrimSpace(intent.PostID) == "" {
			return "", types.NewError(types.ErrCodeInvalidRequest, 0, "unlock requires a post id")
		}
		return prefixPost + intent.PostID, nil
	case types.PaymentSubscription:
		return subscriptionMonthly, nil
	case types.PaymentTip:
		return prefixTip + intent.AmountUSD.StringFixed(2), nil
	case types.PaymentRecurringTip:
		if intent.CreatorID == "" {
			return "", types.NewError(types.ErrCodeInvalidRequest, 0, "recurring tip requires a creator id")
		}
		return prefixRecurringTip + intent.CreatorID + ":" + intent.AmountUSD.StringFixed(2), nil
	default:
		return "", types.NewError(types.ErrCodeInvalidRequest, 0, "unknown payment kind %q", intent.Kind)
	}
}

// ForIntent returns the SKU for a payment intent.
func ForIntent(intent types.PaymentIntent) (common.Hash, error) {
	canonical, err := Canonical(intent)
	if err != nil {
		return common.Hash{}, err
	}
	return Hash(canonical), nil
}
