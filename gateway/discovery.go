package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils/eip712"
)

// WalletBalances reads owner's USDC on every registered chain that has an
// RPC endpoint. Chains that fail are logged and left out.
func (o *Orchestrator) WalletBalances(ctx context.Context, owner common.Address) []types.ChainBalance {
	var out []types.ChainBalance

	for _, p := range o.registry.Profiles() {
		caller, err := o.callers.Caller(p.ChainID)
		if err != nil {
			continue
		}

		bal, err := clients.NewERC20(p.USDC, caller).BalanceOf(ctx, owner)
		if err != nil {
			o.logger.Warn("balance read failed, skipping chain", map[string]any{
				"chain": p.ChainID.String(),
				"error": err,
			})
			continue
		}

		out = append(out, types.ChainBalance{ChainID: p.ChainID, Amount: types.FromUSDCUnits(bal)})
	}

	return out
}

// RegistryMismatch is one difference between the local registry and the
// Gateway service's view of a domain.
type RegistryMismatch struct {
	ChainID  types.ChainID
	Domain   types.DomainID
	Field    string
	Expected string
	Actual   string
}

func (m RegistryMismatch) String() string {
	return fmt.Sprintf("chain %d (domain %d): %s expected %s, service has %s",
		m.ChainID, m.Domain, m.Field, m.Expected, m.Actual)
}

// VerifyRegistry compares the registry with GET /v1/info. Domains the
// service does not list, and contract addresses that differ, are reported.
func (o *Orchestrator) VerifyRegistry(ctx context.Context) ([]RegistryMismatch, error) {
	info, err := o.attestor.Info(ctx)
	if err != nil {
		return nil, err
	}

	served := make(map[types.DomainID]int, len(info.Domains))
	for i, d := range info.Domains {
		served[types.DomainID(d.Domain)] = i
	}

	var mismatches []RegistryMismatch
	for _, p := range o.registry.Profiles() {
		i, ok := served[p.Domain]
		if !ok {
			mismatches = append(mismatches, RegistryMismatch{
				ChainID: p.ChainID, Domain: p.Domain, Field: "domain",
				Expected: "listed", Actual: "missing",
			})
			continue
		}

		d := info.Domains[i]
		if d.WalletContract != nil && p.GatewayWallet != (common.Address{}) &&
			!sameContract(d.WalletContract.Address, p.GatewayWallet) {
			mismatches = append(mismatches, RegistryMismatch{
				ChainID: p.ChainID, Domain: p.Domain, Field: "walletContract",
				Expected: p.GatewayWallet.Hex(), Actual: d.WalletContract.Address,
			})
		}
		if d.MinterContract != nil && p.GatewayMinter != (common.Address{}) &&
			!sameContract(d.MinterContract.Address, p.GatewayMinter) {
			mismatches = append(mismatches, RegistryMismatch{
				ChainID: p.ChainID, Domain: p.Domain, Field: "minterContract",
				Expected: p.GatewayMinter.Hex(), Actual: d.MinterContract.Address,
			})
		}
	}

	if len(mismatches) > 0 {
		o.logger.Warn("registry differs from gateway service", map[string]any{"mismatches": len(mismatches)})
	}
	return mismatches, nil
}

// sameContract compares a service-reported address, plain or padded to
// bytes32, against want. Unparseable values never match.
func sameContract(reported string, want common.Address) bool {
	word, err := eip712.HexToBytes32(reported)
	if err != nil {
		return false
	}
	addr, err := eip712.Bytes32ToAddress(word)
	return err == nil && addr == want
}
