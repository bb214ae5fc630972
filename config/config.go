package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"lendledger/native/lending"
)

// Config captures the runtime settings for the lending ledger daemon.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	Env              string `toml:"Env"`
	AdminAddress     string `toml:"AdminAddress"`
	CustodianAddress string `toml:"CustodianAddress"`
	VaultAddress     string `toml:"VaultAddress"`

	RateLimit RateLimit `toml:"rate_limit"`
	Assets    []Asset   `toml:"asset"`
	Prices    []Price   `toml:"price"`
}

// RateLimit bounds per-source RPC request rates. A zero RequestsPerMinute
// disables limiting.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Asset describes a market bootstrapped at startup.
type Asset struct {
	Address                 string     `toml:"Address"`
	CollateralFactorBps     uint64     `toml:"CollateralFactorBps"`
	LiquidationThresholdBps uint64     `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64     `toml:"LiquidationBonusBps"`
	ReserveFactorBps        uint64     `toml:"ReserveFactorBps"`
	Decimals                uint8      `toml:"Decimals"`
	Enabled                 bool       `toml:"Enabled"`
	Rates                   RateParams `toml:"rates"`
}

// RateParams is the kinked borrow rate curve for an asset. All-zero values
// fall back to the engine defaults.
type RateParams struct {
	BaseRateBps           uint64 `toml:"BaseRateBps"`
	OptimalUtilizationBps uint64 `toml:"OptimalUtilizationBps"`
	RateSlope1Bps         uint64 `toml:"RateSlope1Bps"`
	RateSlope2Bps         uint64 `toml:"RateSlope2Bps"`
}

// Price is a static valuation for an asset, used when no external feed is
// wired. The value is a base-10 integer scaled by 1e18.
type Price struct {
	Asset string `toml:"Asset"`
	Value string `toml:"Value"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.RPCAddress = strings.TrimSpace(cfg.RPCAddress)
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8660"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./lendledger-data"
	}
	cfg.Env = strings.TrimSpace(cfg.Env)
	cfg.AdminAddress = strings.TrimSpace(cfg.AdminAddress)
	cfg.CustodianAddress = strings.TrimSpace(cfg.CustodianAddress)
	cfg.VaultAddress = strings.TrimSpace(cfg.VaultAddress)
	for i := range cfg.Assets {
		cfg.Assets[i].Address = strings.TrimSpace(cfg.Assets[i].Address)
	}
	for i := range cfg.Prices {
		cfg.Prices[i].Asset = strings.TrimSpace(cfg.Prices[i].Asset)
		cfg.Prices[i].Value = strings.TrimSpace(cfg.Prices[i].Value)
	}
}

func (cfg *Config) validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"AdminAddress", cfg.AdminAddress},
		{"CustodianAddress", cfg.CustodianAddress},
		{"VaultAddress", cfg.VaultAddress},
	} {
		if field.value == "" {
			continue
		}
		if !common.IsHexAddress(field.value) {
			return fmt.Errorf("%s: invalid address %q", field.name, field.value)
		}
	}
	for i, asset := range cfg.Assets {
		if !common.IsHexAddress(asset.Address) {
			return fmt.Errorf("asset[%d]: invalid address %q", i, asset.Address)
		}
		for _, bps := range []struct {
			name  string
			value uint64
		}{
			{"CollateralFactorBps", asset.CollateralFactorBps},
			{"LiquidationThresholdBps", asset.LiquidationThresholdBps},
			{"LiquidationBonusBps", asset.LiquidationBonusBps},
			{"ReserveFactorBps", asset.ReserveFactorBps},
		} {
			if bps.value > 10_000 {
				return fmt.Errorf("asset[%d]: %s exceeds 10000", i, bps.name)
			}
		}
	}
	for i, price := range cfg.Prices {
		if !common.IsHexAddress(price.Asset) {
			return fmt.Errorf("price[%d]: invalid asset %q", i, price.Asset)
		}
		if _, err := price.Amount(); err != nil {
			return fmt.Errorf("price[%d]: %w", i, err)
		}
	}
	return nil
}

// Admin returns the configured admin address, zero when unset.
func (cfg *Config) Admin() common.Address {
	return common.HexToAddress(cfg.AdminAddress)
}

// Custodian returns the configured custodian address, zero when unset.
func (cfg *Config) Custodian() common.Address {
	return common.HexToAddress(cfg.CustodianAddress)
}

// Vault returns the configured vault address, zero when unset.
func (cfg *Config) Vault() common.Address {
	return common.HexToAddress(cfg.VaultAddress)
}

// Native converts the bootstrap entry into an engine asset configuration.
func (a Asset) Native() lending.AssetConfig {
	return lending.AssetConfig{
		Asset:                common.HexToAddress(a.Address),
		CollateralFactor:     a.CollateralFactorBps,
		LiquidationThreshold: a.LiquidationThresholdBps,
		LiquidationBonus:     a.LiquidationBonusBps,
		ReserveFactor:        a.ReserveFactorBps,
		Decimals:             a.Decimals,
		Enabled:              a.Enabled,
	}
}

// Native converts the bootstrap entry into engine rate parameters.
func (p RateParams) Native() lending.InterestRateParams {
	return lending.InterestRateParams{
		BaseRate:           p.BaseRateBps,
		OptimalUtilization: p.OptimalUtilizationBps,
		RateSlope1:         p.RateSlope1Bps,
		RateSlope2:         p.RateSlope2Bps,
	}
}

// Amount parses the static price value.
func (p Price) Amount() (*big.Int, error) {
	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid price value %q", p.Value)
	}
	return value, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress: ":8660",
		DataDir:    "./lendledger-data",
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             50,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
