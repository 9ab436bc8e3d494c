package commands

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

var (
	transferFrom      string
	transferRecipient string
)

var transferCmd = &cobra.Command{
	Use:   "transfer <amount>",
	Short: "Sign a burn intent and fetch its Gateway attestation",
	Long: `Sign a burn intent moving <amount> USDC from a source chain to the
configured destination chain and print the attestation to mint there.
The Gateway fee is taken out of the amount.

Examples:
  usdcflow transfer 5 --from 84532
  usdcflow transfer 12.5 --from 11155420 --recipient 0x1234...abcd`,
	Args: cobra.ExactArgs(1),
	RunE: runTransfer,
}

func init() {
	rootCmd.AddCommand(transferCmd)

	transferCmd.Flags().StringVar(&transferFrom, "from", "", "Source chain id (required)")
	transferCmd.Flags().StringVar(&transferRecipient, "recipient", "", "Destination recipient (default: the signer)")
	_ = transferCmd.MarkFlagRequired("from")
}

type transferOutput struct {
	TransferID  string        `json:"transferId"`
	Source      types.ChainID `json:"sourceChain"`
	Destination types.ChainID `json:"destinationChain"`
	Gross       string        `json:"grossUsd"`
	Fee         string        `json:"feeUsd"`
	Net         string        `json:"netUsd"`
	Attestation string        `json:"attestation"`
	Signature   string        `json:"signature"`
}

func runTransfer(cmd *cobra.Command, args []string) error {
	amount, err := utils.ValidateAmount(args[0])
	if err != nil {
		return err
	}
	source, err := parseChain(transferFrom)
	if err != nil {
		return err
	}
	var recipient common.Address
	if transferRecipient != "" {
		if recipient, err = utils.ParseAddress(transferRecipient, "recipient"); err != nil {
			return err
		}
	}

	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	session, err := e.session(source)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Signing burn intent and waiting for attestation..."
		s.Start()
	}
	res, err := e.flow.BuildAndSignTransfer(cmd.Context(), types.TransferRequest{
		SourceChain: source,
		AmountUSD:   amount,
		Recipient:   recipient,
	}, session)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("transfer failed: %s", describeError(err))
	}

	out := transferOutput{
		TransferID:  res.TransferID,
		Source:      res.SourceChain,
		Destination: res.DestinationChain,
		Gross:       types.FromUSDCUnits(res.Gross).String(),
		Fee:         types.FromUSDCUnits(res.Fee).String(),
		Net:         types.FromUSDCUnits(res.Net).String(),
		Attestation: hexutil.Encode(res.Attestation),
		Signature:   hexutil.Encode(res.Signature),
	}
	if jsonOutput {
		return printJSON(out)
	}

	reg := e.flow.Registry()
	printSuccess("Attestation issued")
	printField("Transfer", out.TransferID)
	printField("Route", reg.Name(out.Source)+" -> "+reg.Name(out.Destination))
	printField("Amount", out.Gross+" USDC")
	printField("Fee", out.Fee+" USDC")
	printField("Minted", out.Net+" USDC")
	printField("Attestation", out.Attestation)
	printField("Signature", out.Signature)
	fmt.Println()
	return nil
}
