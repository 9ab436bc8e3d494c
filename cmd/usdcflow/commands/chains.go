package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/burnintent"
	"github.com/vitwit/usdcflow/config"
	"github.com/vitwit/usdcflow/types"
)

var checkRegistry bool

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chains in the registry",
	Long: `List every registered chain with its Gateway domain, USDC contract and the
fee a burn intent from that chain carries.

Examples:
  usdcflow chains
  usdcflow chains --check`,
	Args: cobra.NoArgs,
	RunE: runChains,
}

func init() {
	rootCmd.AddCommand(chainsCmd)

	chainsCmd.Flags().BoolVar(&checkRegistry, "check", false, "Compare the registry with the Gateway /v1/info endpoint")
}

type chainRow struct {
	ChainID   types.ChainID  `json:"chainId"`
	Name      string         `json:"name"`
	Domain    types.DomainID `json:"domain"`
	USDC      string         `json:"usdc"`
	GasFeeUSD string         `json:"gasFeeUsd"`
	MaxFee    string         `json:"maxFee"`
}

func runChains(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	builder := burnintent.NewBuilder(reg, cfg.FeePolicy())

	rows := make([]chainRow, 0, len(reg.Profiles()))
	for _, p := range reg.Profiles() {
		rows = append(rows, chainRow{
			ChainID:   p.ChainID,
			Name:      p.Name,
			Domain:    p.Domain,
			USDC:      p.USDC.Hex(),
			GasFeeUSD: p.GasFeeUSD.String(),
			MaxFee:    types.FromUSDCUnits(builder.FeeUnits(p.ChainID)).String(),
		})
	}

	if jsonOutput {
		if err := printJSON(rows); err != nil {
			return err
		}
	} else {
		fmt.Println()
		for _, r := range rows {
			marker := " "
			if r.ChainID == cfg.DestinationChain {
				marker = color.GreenString("*")
			}
			fmt.Printf("%s %-18s %-10d domain %-3d fee %s USDC  %s\n",
				marker, color.CyanString(r.Name), r.ChainID, r.Domain, r.MaxFee, r.USDC)
		}
		fmt.Println()
	}

	if !checkRegistry {
		return nil
	}

	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	mismatches, err := e.flow.VerifyRegistry(cmd.Context())
	if err != nil {
		return fmt.Errorf("gateway info: %s", describeError(err))
	}
	if len(mismatches) == 0 {
		printSuccess("Registry matches the Gateway service")
		return nil
	}
	for _, m := range mismatches {
		color.Yellow("  %s", m)
	}
	return fmt.Errorf("%d registry mismatches", len(mismatches))
}
