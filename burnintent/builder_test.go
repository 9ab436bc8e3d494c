package burnintent

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils/eip712"
)

var (
	depositor = common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func usdc(s string) *big.Int {
	units, err := types.ToUSDCUnits(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return units
}

func baseParams() Params {
	return Params{
		SourceChain:      types.ChainBaseSepolia,
		DestinationChain: types.ChainArcTestnet,
		Amount:           usdc("5"),
		Depositor:        depositor,
		Recipient:        recipient,
	}
}

func TestFeePolicy(t *testing.T) {
	p := DefaultFeePolicy()
	require.NoError(t, p.Validate())

	cases := map[string]int64{
		"2.00":   2100000, // multiplier wins
		"0.0015": 2000,    // buffer wins
		"0.001":  1500,
		"0.01":   10500,
	}
	for gas, want := range cases {
		assert.Equal(t, big.NewInt(want), p.TotalFeeUnits(decimal.RequireFromString(gas)), gas)
	}

	bad := FeePolicy{Buffer: decimal.Zero, Multiplier: decimal.RequireFromString("0.9")}
	assert.ErrorIs(t, bad.Validate(), types.ErrInvalidRequest)
}

func TestCreate(t *testing.T) {
	reg := registry.Default()
	b := NewBuilder(reg, DefaultFeePolicy())

	intent, err := b.Create(baseParams())
	require.NoError(t, err)

	spec := intent.Spec
	assert.Equal(t, types.TransferSpecVersion, spec.Version)
	assert.Equal(t, types.DomainID(6), spec.SourceDomain)
	assert.Equal(t, types.DomainID(26), spec.DestinationDomain)
	assert.Equal(t, registry.TestnetGatewayWallet, spec.SourceContract)
	assert.Equal(t, registry.TestnetGatewayMinter, spec.DestinationContract)
	assert.Equal(t, common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), spec.SourceToken)
	assert.Equal(t, common.HexToAddress("0x3600000000000000000000000000000000000000"), spec.DestinationToken)
	assert.Equal(t, depositor, spec.SourceSigner)
	assert.Equal(t, common.Address{}, spec.DestinationCaller)
	assert.Empty(t, spec.HookData)
	assert.Equal(t, math.MaxBig256, intent.MaxBlockHeight)
	assert.Equal(t, big.NewInt(10500), intent.MaxFee)
	assert.Equal(t, big.NewInt(4989500), spec.Value)
}

func TestCreateFeeNetInvariant(t *testing.T) {
	reg := registry.Default()
	b := NewBuilder(reg, DefaultFeePolicy())

	for _, chain := range reg.ChainIDs() {
		if chain == types.ChainArcTestnet {
			continue
		}
		for _, amount := range []string{"2.5", "10", "123.456789"} {
			p := baseParams()
			p.SourceChain = chain
			p.Amount = usdc(amount)

			intent, err := b.Create(p)
			require.NoError(t, err, "%s %s", chain, amount)

			gasUnits := types.CeilUSDCUnits(reg.GasFee(chain))
			assert.Equal(t, new(big.Int).Sub(p.Amount, intent.MaxFee), intent.Spec.Value)
			assert.GreaterOrEqual(t, intent.MaxFee.Cmp(gasUnits), 0)
		}
	}
}

func TestCreateAmountFloorForEveryChain(t *testing.T) {
	reg := registry.Default()
	b := NewBuilder(reg, DefaultFeePolicy())

	for _, chain := range reg.ChainIDs() {
		fee := b.FeeUnits(chain)
		p := baseParams()
		p.SourceChain = chain

		for _, amount := range []*big.Int{new(big.Int).Sub(fee, big.NewInt(1)), new(big.Int).Set(fee)} {
			if amount.Sign() <= 0 {
				continue
			}
			p.Amount = amount
			_, err := b.Create(p)
			assert.ErrorIs(t, err, types.ErrAmountTooSmall, "chain %s amount %s", chain, amount)
		}

		p.Amount = new(big.Int).Add(fee, big.NewInt(1))
		intent, err := b.Create(p)
		require.NoError(t, err, chain.String())
		assert.Equal(t, big.NewInt(1), intent.Spec.Value)
	}
}

func TestCreateUniqueSalts(t *testing.T) {
	b := NewBuilder(registry.Default(), DefaultFeePolicy())

	seen := make(map[[32]byte]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		intent, err := b.Create(baseParams())
		require.NoError(t, err)
		seen[intent.Spec.Salt] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestCreateFailures(t *testing.T) {
	reg := registry.Default()

	t.Run("unregistered source", func(t *testing.T) {
		p := baseParams()
		p.SourceChain = 1
		_, err := NewBuilder(reg, DefaultFeePolicy()).Create(p)
		assert.ErrorIs(t, err, types.ErrUnsupportedChain)
	})

	t.Run("unregistered destination", func(t *testing.T) {
		p := baseParams()
		p.DestinationChain = 1
		_, err := NewBuilder(reg, DefaultFeePolicy()).Create(p)
		assert.ErrorIs(t, err, types.ErrUnsupportedChain)
	})

	t.Run("max fee below gas fee", func(t *testing.T) {
		p := baseParams()
		p.MaxFee = big.NewInt(9999)
		_, err := NewBuilder(reg, DefaultFeePolicy()).Create(p)
		assert.ErrorIs(t, err, types.ErrInvalidRequest)
	})

	t.Run("explicit max fee is used", func(t *testing.T) {
		p := baseParams()
		p.MaxFee = big.NewInt(20000)
		intent, err := NewBuilder(reg, DefaultFeePolicy()).Create(p)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(4980000), intent.Spec.Value)
	})

	t.Run("short entropy read", func(t *testing.T) {
		b := NewBuilder(reg, DefaultFeePolicy(), WithEntropy(bytes.NewReader(make([]byte, 10))))
		_, err := b.Create(baseParams())
		assert.Error(t, err)
	})

	t.Run("zero recipient", func(t *testing.T) {
		p := baseParams()
		p.Recipient = common.Address{}
		_, err := NewBuilder(reg, DefaultFeePolicy()).Create(p)
		assert.ErrorIs(t, err, types.ErrUnconfiguredAddress)
	})
}

func word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func addr32(a common.Address) []byte {
	b := eip712.AddressToBytes32(a)
	return b[:]
}

// manualDigest encodes the intent by hand, independent of apitypes.
func manualDigest(intent *types.BurnIntent) common.Hash {
	s := intent.Spec
	specHash := crypto.Keccak256Hash(
		eip712.TransferSpecTypeHash().Bytes(),
		word(big.NewInt(int64(s.Version)).Bytes()),
		word(big.NewInt(int64(s.SourceDomain)).Bytes()),
		word(big.NewInt(int64(s.DestinationDomain)).Bytes()),
		addr32(s.SourceContract),
		addr32(s.DestinationContract),
		addr32(s.SourceToken),
		addr32(s.DestinationToken),
		addr32(s.SourceDepositor),
		addr32(s.DestinationRecipient),
		addr32(s.SourceSigner),
		addr32(s.DestinationCaller),
		word(s.Value.Bytes()),
		s.Salt[:],
		crypto.Keccak256(s.HookData),
	)
	intentHash := crypto.Keccak256Hash(
		eip712.BurnIntentTypeHash().Bytes(),
		word(intent.MaxBlockHeight.Bytes()),
		word(intent.MaxFee.Bytes()),
		specHash.Bytes(),
	)
	return eip712.TypedDataHash(eip712.GatewayDomainSeparator(), intentHash)
}

func TestHashMatchesManualEncoding(t *testing.T) {
	b := NewBuilder(registry.Default(), DefaultFeePolicy())
	p := baseParams()
	p.SourceChain = types.ChainEthereumSepolia // domain 0

	intent, err := b.Create(p)
	require.NoError(t, err)

	digest, err := Hash(intent)
	require.NoError(t, err)
	assert.Equal(t, manualDigest(intent), digest)

	viaAPI, _, err := apitypes.TypedDataAndHash(TypedData(intent))
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(viaAPI), digest)

	again, err := Hash(intent)
	require.NoError(t, err)
	assert.Equal(t, digest, again)
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	p := baseParams()
	p.Depositor = signer
	intent, err := NewBuilder(registry.Default(), DefaultFeePolicy()).Create(p)
	require.NoError(t, err)

	digest, err := Hash(intent)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	got, err := RecoverSigner(intent, sig)
	require.NoError(t, err)
	assert.Equal(t, signer, got)
}

func TestWireMessage(t *testing.T) {
	salt := bytes.Repeat([]byte{0xab}, 32)
	b := NewBuilder(registry.Default(), DefaultFeePolicy(), WithEntropy(bytes.NewReader(salt)))

	intent, err := b.Create(baseParams())
	require.NoError(t, err)

	raw, err := json.Marshal(WireMessage(intent))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	spec := decoded["spec"].(map[string]any)

	assert.Equal(t, "10500", decoded["maxFee"])
	assert.Equal(t, math.MaxBig256.String(), decoded["maxBlockHeight"])
	assert.Equal(t, float64(6), spec["sourceDomain"])
	assert.Equal(t, "4989500", spec["value"])
	assert.Equal(t, "0x000000000000000000000000"+"1111111111111111111111111111111111111111", spec["sourceDepositor"])
	assert.Equal(t, "0x"+"abababababababababababababababababababababababababababababababab", spec["salt"])
	assert.Equal(t, "0x", spec["hookData"])

	td := TypedData(intent)
	assert.Equal(t, "BurnIntent", td.PrimaryType)
	assert.Equal(t, "GatewayWallet", td.Domain.Name)
	assert.Nil(t, td.Domain.ChainId)
	assert.Empty(t, td.Domain.VerifyingContract)
}
