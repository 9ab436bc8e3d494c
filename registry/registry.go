package registry

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/usdcflow/types"
)

// Gateway contracts share the same address on every testnet.
var (
	TestnetGatewayWallet = common.HexToAddress("0x0077777d7EBA4688BDeF3E311b846F25870A19B9")
	TestnetGatewayMinter = common.HexToAddress("0x0022222ABE238Cc2C7Bb1f21003F0a260052475B")
)

// DefaultGasFeeUSD is used for fee estimation on chains without a configured
// gas fee. It is never used for domain or address lookups.
var DefaultGasFeeUSD = decimal.RequireFromString("0.01")

// Registry is an immutable chain table. Build it once at start-up and share
// the pointer; nothing mutates it afterwards.
type Registry struct {
	byChain       map[types.ChainID]types.ChainProfile
	byDomain      map[types.DomainID]types.ChainID
	defaultGasFee decimal.Decimal
}

// New validates profiles and copies them into a new Registry.
func New(profiles []types.ChainProfile, defaultGasFee decimal.Decimal) (*Registry, error) {
	if defaultGasFee.IsNegative() {
		return nil, types.NewError(types.ErrCodeInvalidRequest, 0, "default gas fee %s is negative", defaultGasFee)
	}

	r := &Registry{
		byChain:       make(map[types.ChainID]types.ChainProfile, len(profiles)),
		byDomain:      make(map[types.DomainID]types.ChainID, len(profiles)),
		defaultGasFee: defaultGasFee,
	}

	for _, p := range profiles {
		if p.ChainID == 0 {
			return nil, types.NewError(types.ErrCodeInvalidRequest, 0, "chain profile %q has no chain id", p.Name)
		}
		if _, dup := r.byChain[p.ChainID]; dup {
			return nil, types.NewError(types.ErrCodeInvalidRequest, p.ChainID, "duplicate chain id %d", p.ChainID)
		}
		if other, dup := r.byDomain[p.Domain]; dup {
			return nil, types.NewError(types.ErrCodeInvalidRequest, p.ChainID,
				"domain %d already registered for chain %d", p.Domain, other)
		}
		if p.USDC == (common.Address{}) {
			return nil, types.NewError(types.ErrCodeUnconfiguredAddress, p.ChainID, "chain %d has no USDC address", p.ChainID)
		}
		if p.GasFeeUSD.IsNegative() {
			return nil, types.NewError(types.ErrCodeInvalidRequest, p.ChainID, "chain %d gas fee is negative", p.ChainID)
		}
		if p.Name == "" {
			p.Name = "chain-" + p.ChainID.String()
		}
		r.byChain[p.ChainID] = p
		r.byDomain[p.Domain] = p.ChainID
	}

	return r, nil
}

// Merge returns a new Registry where overrides replace or extend the
// entries of base, keyed by chain id.
func Merge(base *Registry, overrides []types.ChainProfile) (*Registry, error) {
	merged := make(map[types.ChainID]types.ChainProfile, len(base.byChain)+len(overrides))
	for id, p := range base.byChain {
		merged[id] = p
	}
	for _, p := range overrides {
		if existing, ok := merged[p.ChainID]; ok {
			p = overlay(existing, p)
		}
		merged[p.ChainID] = p
	}

	profiles := make([]types.ChainProfile, 0, len(merged))
	for _, p := range merged {
		profiles = append(profiles, p)
	}
	return New(profiles, base.defaultGasFee)
}

// overlay fills zero-valued fields of o from base. Domain is always taken
// from the override because 0 is a real domain.
func overlay(base, o types.ChainProfile) types.ChainProfile {
	if o.Name == "" {
		o.Name = base.Name
	}
	if o.USDC == (common.Address{}) {
		o.USDC = base.USDC
	}
	if o.GasFeeUSD.IsZero() {
		o.GasFeeUSD = base.GasFeeUSD
	}
	if o.GatewayWallet == (common.Address{}) {
		o.GatewayWallet = base.GatewayWallet
	}
	if o.GatewayMinter == (common.Address{}) {
		o.GatewayMinter = base.GatewayMinter
	}
	return o
}

// Profile returns the full entry for chainID.
func (r *Registry) Profile(chainID types.ChainID) (types.ChainProfile, error) {
	p, ok := r.byChain[chainID]
	if !ok {
		return types.ChainProfile{}, types.NewError(types.ErrCodeUnsupportedChain, chainID,
			"chain %d is not supported by Gateway", chainID)
	}
	return p, nil
}

// Domain returns the Gateway domain of chainID. An unregistered chain is an
// error; it never resolves to domain 0.
func (r *Registry) Domain(chainID types.ChainID) (types.DomainID, error) {
	p, err := r.Profile(chainID)
	if err != nil {
		return 0, err
	}
	return p.Domain, nil
}

// USDCAddress returns the USDC token contract on chainID.
func (r *Registry) USDCAddress(chainID types.ChainID) (common.Address, error) {
	p, err := r.Profile(chainID)
	if err != nil {
		return common.Address{}, err
	}
	return p.USDC, nil
}

// GasFee returns the registered gas fee for chainID in USD, or the
// conservative default when the chain has none.
func (r *Registry) GasFee(chainID types.ChainID) decimal.Decimal {
	p, ok := r.byChain[chainID]
	if !ok || p.GasFeeUSD.IsZero() {
		return r.defaultGasFee
	}
	return p.GasFeeUSD
}

// Name returns a display name, falling back to the numeric id.
func (r *Registry) Name(chainID types.ChainID) string {
	if p, ok := r.byChain[chainID]; ok {
		return p.Name
	}
	return "chain-" + chainID.String()
}

func (r *Registry) ByDomain(domain types.DomainID) (types.ChainProfile, error) {
	id, ok := r.byDomain[domain]
	if !ok {
		return types.ChainProfile{}, types.NewError(types.ErrCodeUnsupportedChain, 0,
			"no chain registered for domain %d", domain)
	}
	return r.byChain[id], nil
}

func (r *Registry) Supports(chainID types.ChainID) bool {
	_, ok := r.byChain[chainID]
	return ok
}

// Profiles returns a copy of every entry ordered by domain.
func (r *Registry) Profiles() []types.ChainProfile {
	out := make([]types.ChainProfile, 0, len(r.byChain))
	for _, p := range r.byChain {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

func (r *Registry) ChainIDs() []types.ChainID {
	profiles := r.Profiles()
	ids := make([]types.ChainID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ChainID
	}
	return ids
}
