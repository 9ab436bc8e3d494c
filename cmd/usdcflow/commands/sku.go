package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/sku"
	"github.com/vitwit/usdcflow/types"
)

var (
	skuKind      string
	skuPost      string
	skuCreatorID string
	skuAmount    string
)

var skuCmd = &cobra.Command{
	Use:   "sku",
	Short: "Print the PayRouter SKU for a purchase",
	Long: `Print the canonical string and keccak256 SKU the PayRouter expects.

Examples:
  usdcflow sku --kind unlock --post p1
  usdcflow sku --kind tip --amount 2.5
  usdcflow sku --kind recurringTip --creator-id c1 --amount 5`,
	Args: cobra.NoArgs,
	RunE: runSku,
}

func init() {
	rootCmd.AddCommand(skuCmd)

	skuCmd.Flags().StringVar(&skuKind, "kind", string(types.PaymentUnlock), "unlock, subscription, tip or recurringTip")
	skuCmd.Flags().StringVar(&skuPost, "post", "", "Post id (unlock)")
	skuCmd.Flags().StringVar(&skuCreatorID, "creator-id", "", "Creator id (recurringTip)")
	skuCmd.Flags().StringVar(&skuAmount, "amount", "0", "Amount in USD (tip, recurringTip)")
}

func runSku(_ *cobra.Command, _ []string) error {
	amount, err := decimal.NewFromString(skuAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", skuAmount, err)
	}
	intent := types.PaymentIntent{
		Kind:      types.PaymentKind(skuKind),
		AmountUSD: amount,
		CreatorID: skuCreatorID,
		PostID:    skuPost,
	}

	canonical, err := sku.Canonical(intent)
	if err != nil {
		return err
	}
	hash := sku.Hash(canonical)

	if jsonOutput {
		return printJSON(map[string]string{"canonical": canonical, "sku": hash.Hex()})
	}
	fmt.Println()
	printField("Canonical", canonical)
	printField("SKU", hash.Hex())
	fmt.Println()
	return nil
}
