// Package config loads usdcflow settings from a YAML file, a .env file and
// USDCFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/vitwit/usdcflow/attestation"
	"github.com/vitwit/usdcflow/burnintent"
	"github.com/vitwit/usdcflow/consolidation"
	"github.com/vitwit/usdcflow/registry"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

const (
	envPrefix    = "USDCFLOW"
	rpcEnvPrefix = envPrefix + "_RPC_"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel         string              `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	DestinationChain types.ChainID       `mapstructure:"destination_chain" validate:"required"`
	HomeChain        types.ChainID       `mapstructure:"home_chain" validate:"required"`
	PayRouter        common.Address      `mapstructure:"pay_router"`
	Gateway          GatewayConfig       `mapstructure:"gateway"`
	Fees             FeesConfig          `mapstructure:"fees"`
	Consolidation    ConsolidationConfig `mapstructure:"consolidation"`
	RPC              map[string]string   `mapstructure:"rpc" validate:"dive,url"`
	Chains           []ChainOverride     `mapstructure:"chains" validate:"dive"`
	Ledger           LedgerConfig        `mapstructure:"ledger"`
	Metrics          MetricsConfig       `mapstructure:"metrics"`
}

// ChainOverride replaces or adds a registry entry. Unset fields keep the
// built-in value; a new chain must name its domain.
type ChainOverride struct {
	ChainID       types.ChainID   `mapstructure:"chain_id" validate:"required"`
	Name          string          `mapstructure:"name"`
	Domain        *types.DomainID `mapstructure:"domain"`
	USDC          common.Address  `mapstructure:"usdc"`
	GasFeeUSD     decimal.Decimal `mapstructure:"gas_fee_usd"`
	GatewayWallet common.Address  `mapstructure:"gateway_wallet"`
	GatewayMinter common.Address  `mapstructure:"gateway_minter"`
	Testnet       *bool           `mapstructure:"testnet"`
}

type GatewayConfig struct {
	APIURL            string        `mapstructure:"api_url" validate:"required,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
}

// FeesConfig holds the fee margins and the gas fee used for chains the
// registry has no figure for.
type FeesConfig struct {
	BufferUSD     decimal.Decimal `mapstructure:"buffer_usd"`
	Multiplier    decimal.Decimal `mapstructure:"multiplier"`
	DefaultGasUSD decimal.Decimal `mapstructure:"default_gas_usd"`
}

type ConsolidationConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
}

type LedgerConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads path, or usdcflow.yaml from the working directory and
// $HOME/.usdcflow when path is empty. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("usdcflow")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.usdcflow")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("pay_router")

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		decimalHook,
		addressHook,
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.RPC = mergeRPCEnv(cfg.RPC, os.Environ())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	fees := burnintent.DefaultFeePolicy()

	v.SetDefault("log_level", "info")
	v.SetDefault("destination_chain", uint64(types.ChainArcTestnet))
	v.SetDefault("home_chain", uint64(types.ChainArcTestnet))

	v.SetDefault("gateway.api_url", attestation.GatewayTestnetURL)
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("gateway.requests_per_second", 10)

	v.SetDefault("fees.buffer_usd", fees.Buffer.String())
	v.SetDefault("fees.multiplier", fees.Multiplier.String())
	v.SetDefault("fees.default_gas_usd", registry.DefaultGasFeeUSD.String())

	v.SetDefault("consolidation.settle_delay", consolidation.DefaultSettleDelay.String())

	v.SetDefault("ledger.url", "")
	v.SetDefault("ledger.timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate checks struct tags and the values tags cannot express.
func (c *Config) Validate() error {
	if err := utils.Validator().Struct(c); err != nil {
		return err
	}
	if err := c.FeePolicy().Validate(); err != nil {
		return err
	}
	if c.Fees.DefaultGasUSD.IsNegative() {
		return fmt.Errorf("fees.default_gas_usd must not be negative")
	}
	if _, err := c.Endpoints(); err != nil {
		return err
	}
	return nil
}

func (c *Config) FeePolicy() burnintent.FeePolicy {
	return burnintent.FeePolicy{Buffer: c.Fees.BufferUSD, Multiplier: c.Fees.Multiplier}
}

// Registry is the built-in testnet table with the configured chain
// overrides applied.
func (c *Config) Registry() (*registry.Registry, error) {
	base, err := registry.New(registry.TestnetProfiles(), c.Fees.DefaultGasUSD)
	if err != nil {
		return nil, err
	}
	if len(c.Chains) == 0 {
		return base, nil
	}

	overrides := make([]types.ChainProfile, 0, len(c.Chains))
	for _, o := range c.Chains {
		existing, err := base.Profile(o.ChainID)
		known := err == nil

		p := types.ChainProfile{
			ChainID:       o.ChainID,
			Name:          o.Name,
			USDC:          o.USDC,
			GasFeeUSD:     o.GasFeeUSD,
			GatewayWallet: o.GatewayWallet,
			GatewayMinter: o.GatewayMinter,
			Testnet:       existing.Testnet,
		}
		switch {
		case o.Domain != nil:
			p.Domain = *o.Domain
		case known:
			p.Domain = existing.Domain
		default:
			return nil, types.NewError(types.ErrCodeInvalidRequest, o.ChainID, "chain %d is not built in and needs a domain", o.ChainID)
		}
		if o.Testnet != nil {
			p.Testnet = *o.Testnet
		}
		overrides = append(overrides, p)
	}
	return registry.Merge(base, overrides)
}

// Endpoints returns the RPC URLs keyed by chain id.
func (c *Config) Endpoints() (map[types.ChainID]string, error) {
	out := make(map[types.ChainID]string, len(c.RPC))
	for key, url := range c.RPC {
		id, err := utils.ParseChainID(key)
		if err != nil {
			return nil, fmt.Errorf("rpc.%s: %w", key, err)
		}
		out[id] = url
	}
	return out, nil
}

func (c *Config) AttestationConfig() attestation.Config {
	return attestation.Config{
		BaseURL:           c.Gateway.APIURL,
		Timeout:           c.Gateway.Timeout,
		RequestsPerSecond: c.Gateway.RequestsPerSecond,
	}
}

// mergeRPCEnv adds USDCFLOW_RPC_<chainId>=<url> entries, which viper cannot
// discover for map keys it has not seen.
func mergeRPCEnv(rpc map[string]string, environ []string) map[string]string {
	if rpc == nil {
		rpc = map[string]string{}
	}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, rpcEnvPrefix) || value == "" {
			continue
		}
		rpc[strings.TrimPrefix(key, rpcEnvPrefix)] = value
	}
	return rpc
}

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	addressType = reflect.TypeOf(common.Address{})
)

func decimalHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}

func addressHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	s, ok := data.(string)
	if to != addressType || !ok {
		return data, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("%q is not an EVM address", s)
	}
	return common.HexToAddress(s), nil
}
