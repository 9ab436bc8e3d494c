package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/usdcflow/attestation"
	"github.com/vitwit/usdcflow/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usdcflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, types.ChainArcTestnet, cfg.DestinationChain)
	assert.Equal(t, types.ChainArcTestnet, cfg.HomeChain)
	assert.Equal(t, attestation.GatewayTestnetURL, cfg.Gateway.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Consolidation.SettleDelay)
	assert.Equal(t, "0.0005", cfg.Fees.BufferUSD.String())
	assert.Equal(t, "1.05", cfg.Fees.Multiplier.String())
	assert.Equal(t, common.Address{}, cfg.PayRouter)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Len(t, reg.Profiles(), 8)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
destination_chain: 5042002
home_chain: 5042002
pay_router: "0x00000000000000000000000000000000000000a1"
gateway:
  api_url: https://gateway-api.circle.com
  timeout: 5s
  requests_per_second: 2
fees:
  buffer_usd: 0.001
  multiplier: 1.1
consolidation:
  settle_delay: 250ms
rpc:
  "84532": https://sepolia.base.org
chains:
  - chain_id: 84532
    gas_fee_usd: "0.05"
  - chain_id: 999
    name: Custom
    domain: 40
    usdc: "0x00000000000000000000000000000000000000d1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, common.HexToAddress("0xa1"), cfg.PayRouter)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Consolidation.SettleDelay)
	assert.Equal(t, "1.1", cfg.FeePolicy().Multiplier.String())

	endpoints, err := cfg.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.base.org", endpoints[types.ChainBaseSepolia])

	reg, err := cfg.Registry()
	require.NoError(t, err)

	base, err := reg.Profile(types.ChainBaseSepolia)
	require.NoError(t, err)
	assert.Equal(t, "0.05", base.GasFeeUSD.String())
	assert.Equal(t, types.DomainID(6), base.Domain)
	assert.Equal(t, "Base Sepolia", base.Name)

	custom, err := reg.Profile(999)
	require.NoError(t, err)
	assert.Equal(t, types.DomainID(40), custom.Domain)
}

func TestLoadEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("USDCFLOW_LOG_LEVEL", "warn")
	t.Setenv("USDCFLOW_DESTINATION_CHAIN", "84532")
	t.Setenv("USDCFLOW_PAY_ROUTER", "0x00000000000000000000000000000000000000a2")
	t.Setenv("USDCFLOW_FEES_MULTIPLIER", "1.2")
	t.Setenv("USDCFLOW_RPC_5042002", "https://rpc.testnet.arc.network")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, types.ChainBaseSepolia, cfg.DestinationChain)
	assert.Equal(t, common.HexToAddress("0xa2"), cfg.PayRouter)
	assert.Equal(t, "1.2", cfg.Fees.Multiplier.String())
	assert.Equal(t, "https://rpc.testnet.arc.network", cfg.RPC["5042002"])
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"log level":      "log_level: loud\n",
		"multiplier":     "fees:\n  multiplier: 0.9\n",
		"router address": "pay_router: nope\n",
		"rpc url":        "rpc:\n  \"84532\": not a url\n",
		"rpc key":        "rpc:\n  base: https://sepolia.base.org\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistryNeedsDomainForNewChain(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
chains:
  - chain_id: 999
    usdc: "0x00000000000000000000000000000000000000d1"
`))
	require.NoError(t, err)

	_, err = cfg.Registry()
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}
