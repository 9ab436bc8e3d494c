package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/types"
)

var noConfirm bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Move USDC from every chain to the destination chain",
	Long: `Read the local key's USDC balance on every configured chain, bridge each
balance that covers the Gateway fee and mint it on the destination chain.
A failing chain does not stop the others.

Examples:
  usdcflow consolidate
  usdcflow consolidate --yes`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	session, err := e.session(e.cfg.DestinationChain)
	if err != nil {
		return err
	}
	owner := session.Address()

	balances := e.flow.WalletBalances(cmd.Context(), owner)
	plan := e.flow.PlanConsolidation(balances)
	if len(plan) == 0 {
		if jsonOutput {
			return printJSON(plan)
		}
		color.Yellow("\nNothing to consolidate: no balance covers its Gateway fee\n")
		return nil
	}

	reg := e.flow.Registry()
	if !jsonOutput {
		fmt.Printf("\nConsolidating to %s:\n\n", color.CyanString(reg.Name(e.cfg.DestinationChain)))
		for _, step := range plan {
			fmt.Printf("  %-18s %s USDC\n", step.ChainName, step.Balance.StringFixed(6))
		}
		fmt.Println()

		if !noConfirm && !confirm("Proceed?") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	var failed int
	var final []types.ConsolidationStep
	for u := range e.flow.ConsolidateStream(cmd.Context(), balances, owner, session) {
		if jsonOutput {
			if u.Step.Status == types.StepCompleted || u.Step.Status == types.StepError {
				final = append(final, u.Step)
			}
			if u.Step.Status == types.StepError {
				failed++
			}
			continue
		}
		switch u.Step.Status {
		case types.StepBridging:
			fmt.Printf("  %s %s...\n", color.YellowString("~"), u.Step.ChainName)
		case types.StepCompleted:
			fmt.Printf("  %s %s minted in %s\n", color.GreenString("✓"), u.Step.ChainName, u.Step.TxHash)
		case types.StepError:
			failed++
			note := ""
			if u.Step.UserRejected {
				note = " (rejected)"
			}
			fmt.Printf("  %s %s: %s%s\n", color.RedString("✗"), u.Step.ChainName, u.Step.Error, note)
		}
	}

	if jsonOutput {
		if err := printJSON(final); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chains failed", failed, len(plan))
	}
	if !jsonOutput {
		printSuccess("Consolidation complete")
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
