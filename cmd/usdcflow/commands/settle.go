package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

var (
	intentPath  string
	settleChain string
	verifyTx    string
)

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Pay a creator for a payment intent",
	Long: `Settle a payment intent read from a JSON file. On the home chain the payment
goes through the PayRouter (approve, then pay); elsewhere USDC is sent to
the creator directly.

Examples:
  usdcflow settle --intent intent.json --chain 5042002`,
	Args: cobra.NoArgs,
	RunE: runSettle,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a transaction settled a payment intent",
	Long: `Fetch the receipt of a settlement transaction and check the PayRouter
Payment event, or the USDC Transfer off the home chain, against the intent.

Examples:
  usdcflow verify --intent intent.json --chain 5042002 --tx 0x...`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(settleCmd)
	rootCmd.AddCommand(verifyCmd)

	for _, c := range []*cobra.Command{settleCmd, verifyCmd} {
		c.Flags().StringVar(&intentPath, "intent", "", "Payment intent JSON file (required)")
		c.Flags().StringVar(&settleChain, "chain", "", "Chain id (default: the home chain)")
		_ = c.MarkFlagRequired("intent")
	}
	verifyCmd.Flags().StringVar(&verifyTx, "tx", "", "Settlement transaction hash (required)")
	_ = verifyCmd.MarkFlagRequired("tx")
}

func readIntent() (*types.PaymentIntent, error) {
	data, err := os.ReadFile(intentPath)
	if err != nil {
		return nil, err
	}
	return utils.ParsePaymentIntent(data)
}

func chainOrHome(e *env) (types.ChainID, error) {
	if settleChain == "" {
		return e.cfg.HomeChain, nil
	}
	return parseChain(settleChain)
}

func runSettle(cmd *cobra.Command, _ []string) error {
	intent, err := readIntent()
	if err != nil {
		return err
	}

	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	chain, err := chainOrHome(e)
	if err != nil {
		return err
	}
	session, err := e.session(chain)
	if err != nil {
		return err
	}

	res, err := e.flow.SettlePayment(cmd.Context(), *intent, chain, session)
	if err != nil {
		return fmt.Errorf("settlement failed: %s", describeError(err))
	}
	if jsonOutput {
		return printJSON(res)
	}

	printSuccess("Payment settled on %s", e.flow.Registry().Name(chain))
	if res.ViaRouter {
		printField("SKU", res.SKU)
		printField("Approval", res.ApprovalHash)
	}
	printField("Transaction", res.TxHash)
	printField("Amount", types.FromUSDCUnits(res.Amount).String()+" USDC")
	printField("Record", res.RecordID)
	if res.RecordPending {
		printField("Ledger", "not recorded, retry later")
	}
	fmt.Println()
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	intent, err := readIntent()
	if err != nil {
		return err
	}
	hash, err := utils.ParseTxHash(verifyTx)
	if err != nil {
		return err
	}

	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	chain, err := chainOrHome(e)
	if err != nil {
		return err
	}

	res, err := e.flow.VerifyPayment(cmd.Context(), *intent, chain, hash)
	if err != nil {
		return fmt.Errorf("verification failed: %s", describeError(err))
	}
	if jsonOutput {
		if err := printJSON(res); err != nil {
			return err
		}
	} else if res.IsValid {
		printSuccess("Payment verified")
		printField("Payer", res.Payer)
		printField("Creator", res.Recipient)
		printField("Amount", types.FromUSDCUnits(res.Amount).String()+" USDC")
		fmt.Println()
	}
	if !res.IsValid {
		return fmt.Errorf("payment does not match intent: %s", res.InvalidReason)
	}
	return nil
}
