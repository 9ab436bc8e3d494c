package burnintent

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
)

// Params describes one transfer. Amount is the gross amount in USDC units;
// the fee is taken out of it, never added on top.
type Params struct {
	SourceChain      types.ChainID
	DestinationChain types.ChainID
	Amount           *big.Int
	Depositor        common.Address
	Recipient        common.Address
	// Signer defaults to Depositor.
	Signer common.Address

	// Optional overrides. Tokens default to the registered USDC contracts.
	SourceToken      *common.Address
	DestinationToken *common.Address
	MaxFee           *big.Int
}

// Builder creates burn intents. It holds no per-intent state; every call
// returns a new intent with a fresh salt.
type Builder struct {
	registry       *registry.Registry
	fees           FeePolicy
	entropy        io.Reader
	maxBlockHeight *big.Int
}

type Option func(*Builder)

// WithEntropy replaces the salt source. Tests only; production must use
// the platform CSPRNG.
func WithEntropy(r io.Reader) Option {
	return func(b *Builder) { b.entropy = r }
}

func WithMaxBlockHeight(h *big.Int) Option {
	return func(b *Builder) { b.maxBlockHeight = new(big.Int).Set(h) }
}

func NewBuilder(reg *registry.Registry, fees FeePolicy, opts ...Option) *Builder {
	b := &Builder{
		registry:       reg,
		fees:           fees,
		entropy:        rand.Reader,
		maxBlockHeight: new(big.Int).Set(math.MaxBig256),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Fees() FeePolicy { return b.fees }

// FeeUnits returns the fee ceiling for a transfer out of chain.
func (b *Builder) FeeUnits(chain types.ChainID) *big.Int {
	return b.fees.TotalFeeUnits(b.registry.GasFee(chain))
}

// Create builds a burn intent with Value = Amount - fee.
func (b *Builder) Create(p Params) (*types.BurnIntent, error) {
	src, err := b.registry.Profile(p.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := b.registry.Profile(p.DestinationChain)
	if err != nil {
		return nil, err
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, types.NewError(types.ErrCodeInvalidRequest, p.SourceChain, "amount must be positive")
	}
	if p.Depositor == (common.Address{}) {
		return nil, types.NewError(types.ErrCodeUnconfiguredAddress, p.SourceChain, "depositor address is not set")
	}
	if p.Recipient == (common.Address{}) {
		return nil, types.NewError(types.ErrCodeUnconfiguredAddress, p.DestinationChain, "recipient address is not set")
	}

	gasUnits := types.CeilUSDCUnits(b.registry.GasFee(src.ChainID))
	fee := b.fees.TotalFeeUnits(b.registry.GasFee(src.ChainID))
	if p.MaxFee != nil {
		if p.MaxFee.Cmp(gasUnits) < 0 {
			return nil, types.NewError(types.ErrCodeInvalidRequest, p.SourceChain,
				"max fee %s is below the registered gas fee %s", p.MaxFee, gasUnits)
		}
		fee = new(big.Int).Set(p.MaxFee)
	}

	net, err := NetAmount(p.Amount, fee, p.SourceChain)
	if err != nil {
		return nil, err
	}

	salt, err := b.newSalt()
	if err != nil {
		return nil, err
	}

	sourceToken := src.USDC
	if p.SourceToken != nil {
		sourceToken = *p.SourceToken
	}
	destinationToken := dst.USDC
	if p.DestinationToken != nil {
		destinationToken = *p.DestinationToken
	}
	signer := p.Signer
	if signer == (common.Address{}) {
		signer = p.Depositor
	}

	return &types.BurnIntent{
		MaxBlockHeight: new(big.Int).Set(b.maxBlockHeight),
		MaxFee:         fee,
		Spec: types.TransferSpec{
			Version:              types.TransferSpecVersion,
			SourceDomain:         src.Domain,
			DestinationDomain:    dst.Domain,
			SourceContract:       src.GatewayWallet,
			DestinationContract:  dst.GatewayMinter,
			SourceToken:          sourceToken,
			DestinationToken:     destinationToken,
			SourceDepositor:      p.Depositor,
			DestinationRecipient: p.Recipient,
			SourceSigner:         signer,
			DestinationCaller:    common.Address{},
			Value:                net,
			Salt:                 salt,
			HookData:             []byte{},
		},
	}, nil
}

func (b *Builder) newSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := io.ReadFull(b.entropy, salt[:]); err != nil {
		return salt, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}
