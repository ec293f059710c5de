// Package config loads the nested YAML configuration document: chain
// RPC endpoints, the Virtuals catalog API, the fee-receiver/base-token
// addresses, the launch-window thresholds and the logging level.
// String values may embed ${ENV_NAME} placeholders substituted from
// the process environment; a missing required env is a fatal config
// error.
package config

import (
	"fmt"
	"math/big"
	"os"
	"regexp"
	"time"

	"github.com/launchwatch/monitor/internal/errkind"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML document at CONFIG_PATH.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Virtuals    VirtualsConfig    `yaml:"virtuals"`
	Addresses   AddressesConfig   `yaml:"addresses"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ChainConfig struct {
	RPC RPCConfig `yaml:"rpc"`
}

type RPCConfig struct {
	HTTP []string `yaml:"http"`
	WSS  []string `yaml:"wss"`
}

type VirtualsConfig struct {
	APIBase             string `yaml:"apiBase"`
	UsdQuoteURL         string `yaml:"usdQuoteUrl"`
	PollIntervalMs      int    `yaml:"pollIntervalMs"`
	MaxProjectAgeMinutes int   `yaml:"maxProjectAgeMinutes"`
}

type AddressesConfig struct {
	BuybackAddr  string `yaml:"buybackAddr"`
	VirtualToken string `yaml:"virtualToken"`
}

type ThresholdsConfig struct {
	BigTradeVirtual          string `yaml:"bigTradeVirtual"`
	TaxWindowMinutes         int    `yaml:"taxWindowMinutes"`
	BuybackRateWindowMinutes int    `yaml:"buybackRateWindowMinutes"`
	StallAlertMinutes        int    `yaml:"stallAlertMinutes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads path, substitutes ${ENV_NAME} placeholders and validates
// the result. Any failure is returned as a Config-kind error: callers
// at cmd/monitor must treat it as fatal.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.NewConfig(fmt.Errorf("read config %s: %w", path, err))
	}

	expanded, err := expandEnv(string(raw))
	if err != nil {
		return nil, errkind.NewConfig(err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errkind.NewConfig(fmt.Errorf("parse config YAML: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errkind.NewConfig(err)
	}

	return &cfg, nil
}

// expandEnv substitutes every ${ENV_NAME} occurrence in raw, failing if
// any referenced variable is unset.
func expandEnv(raw string) (string, error) {
	var missing []string
	out := envPlaceholder.ReplaceAllStringFunc(raw, func(match string) string {
		name := envPlaceholder.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variables: %v", missing)
	}
	return out, nil
}

var addrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate checks the structural invariants this config requires: non-empty
// RPC endpoint lists and well-formed addresses.
func (c *Config) Validate() error {
	if len(c.Chain.RPC.HTTP) == 0 {
		return fmt.Errorf("chain.rpc.http must not be empty")
	}
	if len(c.Chain.RPC.WSS) == 0 {
		return fmt.Errorf("chain.rpc.wss must not be empty")
	}
	if c.Virtuals.APIBase == "" {
		return fmt.Errorf("virtuals.apiBase must not be empty")
	}
	if c.Virtuals.UsdQuoteURL == "" {
		return fmt.Errorf("virtuals.usdQuoteUrl must not be empty")
	}
	if !addrPattern.MatchString(c.Addresses.BuybackAddr) {
		return fmt.Errorf("addresses.buybackAddr is not a valid 0x address: %q", c.Addresses.BuybackAddr)
	}
	if !addrPattern.MatchString(c.Addresses.VirtualToken) {
		return fmt.Errorf("addresses.virtualToken is not a valid 0x address: %q", c.Addresses.VirtualToken)
	}
	if c.Thresholds.TaxWindowMinutes <= 0 {
		return fmt.Errorf("thresholds.taxWindowMinutes must be positive")
	}
	if c.Thresholds.BuybackRateWindowMinutes <= 0 {
		return fmt.Errorf("thresholds.buybackRateWindowMinutes must be positive")
	}
	if c.Thresholds.StallAlertMinutes <= 0 {
		return fmt.Errorf("thresholds.stallAlertMinutes must be positive")
	}
	if _, ok := new(big.Int).SetString(c.Thresholds.BigTradeVirtual, 10); !ok {
		return fmt.Errorf("thresholds.bigTradeVirtual is not a valid integer: %q", c.Thresholds.BigTradeVirtual)
	}
	return nil
}

// TaxWindow returns thresholds.taxWindowMinutes as a Duration.
func (c *Config) TaxWindow() time.Duration {
	return time.Duration(c.Thresholds.TaxWindowMinutes) * time.Minute
}

// BuybackRateWindow returns thresholds.buybackRateWindowMinutes as a Duration.
func (c *Config) BuybackRateWindow() time.Duration {
	return time.Duration(c.Thresholds.BuybackRateWindowMinutes) * time.Minute
}

// StallAlert returns thresholds.stallAlertMinutes as a Duration.
func (c *Config) StallAlert() time.Duration {
	return time.Duration(c.Thresholds.StallAlertMinutes) * time.Minute
}

// PollInterval returns virtuals.pollIntervalMs as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Virtuals.PollIntervalMs) * time.Millisecond
}

// MaxProjectAge returns virtuals.maxProjectAgeMinutes as a Duration.
func (c *Config) MaxProjectAge() time.Duration {
	return time.Duration(c.Virtuals.MaxProjectAgeMinutes) * time.Minute
}

// BigTradeThreshold parses thresholds.bigTradeVirtual as a base-10
// integer in base-token units.
func (c *Config) BigTradeThreshold() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.Thresholds.BigTradeVirtual, 10)
	if !ok {
		return nil, fmt.Errorf("thresholds.bigTradeVirtual is not a valid integer: %q", c.Thresholds.BigTradeVirtual)
	}
	return v, nil
}

// VirtualsPublicView is the subset of VirtualsConfig the dashboard is
// allowed to see: apiBase, pollIntervalMs and maxProjectAgeMinutes.
// UsdQuoteURL is deliberately omitted — it is an upstream quote
// provider endpoint, not something a dashboard client needs.
type VirtualsPublicView struct {
	APIBase              string `json:"apiBase"`
	PollIntervalMs       int    `json:"pollIntervalMs"`
	MaxProjectAgeMinutes int    `json:"maxProjectAgeMinutes"`
}

// PublicView is the /api/config response shape: secrets (none are
// currently modeled, but any future RPC auth token would live here)
// are excluded by construction — only the fields the dashboard needs.
type PublicView struct {
	Chain      string             `json:"chain"`
	Thresholds ThresholdsConfig   `json:"thresholds"`
	Virtuals   VirtualsPublicView `json:"virtuals"`
}

// Public renders the /api/config payload.
func (c *Config) Public() PublicView {
	return PublicView{
		Chain:      "evm",
		Thresholds: c.Thresholds,
		Virtuals: VirtualsPublicView{
			APIBase:              c.Virtuals.APIBase,
			PollIntervalMs:       c.Virtuals.PollIntervalMs,
			MaxProjectAgeMinutes: c.Virtuals.MaxProjectAgeMinutes,
		},
	}
}
