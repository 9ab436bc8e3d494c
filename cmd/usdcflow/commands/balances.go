package commands

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

var balancesCmd = &cobra.Command{
	Use:   "balances [address]",
	Short: "Show USDC balances on every configured chain",
	Long: `Read the USDC balance of an address on every chain with an RPC endpoint.
Without an address the local key's address is used.

Examples:
  usdcflow balances
  usdcflow balances 0x1234...abcd`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBalances,
}

func init() {
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	var owner common.Address
	if len(args) == 1 {
		owner, err = utils.ParseAddress(args[0], "address")
	} else {
		owner, err = e.localAddress()
	}
	if err != nil {
		return err
	}

	balances := e.flow.WalletBalances(cmd.Context(), owner)
	if jsonOutput {
		return printJSON(balances)
	}
	printBalances(e, owner, balances)
	return nil
}

func printBalances(e *env, owner common.Address, balances []types.ChainBalance) {
	fmt.Printf("\nUSDC held by %s\n\n", color.CyanString(owner.Hex()))
	for _, b := range balances {
		fmt.Printf("  %-18s %s\n", e.flow.Registry().Name(b.ChainID), b.Amount.StringFixed(6))
	}
	fmt.Println()
}

func (e *env) localAddress() (common.Address, error) {
	s, err := e.session(e.cfg.DestinationChain)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}
