package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/flashloan"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// DefaultConfigFile is read when no --config flag is given
const DefaultConfigFile = "config.yaml"

const (
	DEXKindUniswap = "uniswap"
	DEXKindOracle  = "oracle"
)

// Config describes one simulated chain: the engine deployment, the flash
// loan gateways, the DEX pools and the requests to run against them.
// Amounts and rates are decimal strings in whole tokens (18 decimals).
type Config struct {
	Owner           string `yaml:"owner"`
	EngineAddress   string `yaml:"engine_address"`
	ProfitPolicy    string `yaml:"profit_policy"`
	ResultCacheSize int    `yaml:"result_cache_size"`

	// Gateway pins the flash loan gateway by name; empty picks the cheapest
	// one able to fund the first request
	Gateway  string          `yaml:"gateway"`
	Gateways []GatewayConfig `yaml:"gateways"`

	Tokens            []TokenConfig   `yaml:"tokens"`
	DEXes             []DEXConfig     `yaml:"dexes"`
	AuthorizedCallers []string        `yaml:"authorized_callers"`
	Requests          []RequestConfig `yaml:"requests"`

	HTTPAddr    string `yaml:"http_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogFile     string `yaml:"log_file"`
}

type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

type GatewayConfig struct {
	Kind              string `yaml:"kind"`
	Name              string `yaml:"name"`
	Address           string `yaml:"address"`
	PremiumBps        uint64 `yaml:"premium_bps"`
	MaxLoanPercentage uint8  `yaml:"max_loan_percentage"`
	// Liquidity maps a token reference to the amount minted to the gateway
	Liquidity map[string]string `yaml:"liquidity"`
}

type DEXConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	Factory string `yaml:"factory"`
	FeeBps  uint64 `yaml:"fee_bps"`
	TokenA  string `yaml:"token_a"`
	TokenB  string `yaml:"token_b"`
	// Rates only apply to oracle pools
	Rates    []RateConfig      `yaml:"rates"`
	Balances map[string]string `yaml:"balances"`
}

type RateConfig struct {
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
	Rate     string `yaml:"rate"`
}

// RequestConfig references tokens by symbol or address and DEXes by name
// or address
type RequestConfig struct {
	Caller       string `yaml:"caller"`
	TokenA       string `yaml:"token_a"`
	TokenB       string `yaml:"token_b"`
	DexBuy       string `yaml:"dex_buy"`
	DexSell      string `yaml:"dex_sell"`
	AmountIn     string `yaml:"amount_in"`
	MinProfitBps uint64 `yaml:"min_profit_bps"`
	TTL          string `yaml:"ttl"`
}

// DefaultConfig returns a config with every optional field filled
func DefaultConfig() *Config {
	return &Config{
		ProfitPolicy:    string(engine.PolicyRetain),
		ResultCacheSize: engine.DefaultResultCacheSize,
		HTTPAddr:        ":8080",
	}
}

// LoadConfig reads the YAML file at cfgFile over the defaults, applies
// environment overrides and validates the result
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = DefaultConfigFile
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig without validating
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) ValidateConfig() error {
	var errors []string

	// Engine deployment
	if !common.IsHexAddress(c.Owner) || common.HexToAddress(c.Owner) == (common.Address{}) {
		errors = append(errors, "owner must be a non-zero address")
	}
	if c.EngineAddress != "" && !common.IsHexAddress(c.EngineAddress) {
		errors = append(errors, "engine_address must be an address")
	}
	if _, err := engine.ParseProfitPolicy(c.ProfitPolicy); err != nil {
		errors = append(errors, err.Error())
	}
	if c.ResultCacheSize < 0 {
		errors = append(errors, "result_cache_size cannot be negative")
	}

	// Tokens
	symbols := make(map[string]struct{}, len(c.Tokens))
	for i, tok := range c.Tokens {
		if tok.Symbol == "" {
			errors = append(errors, fmt.Sprintf("tokens[%d]: symbol must be specified", i))
		}
		if _, dup := symbols[tok.Symbol]; dup {
			errors = append(errors, fmt.Sprintf("tokens[%d]: duplicate symbol %q", i, tok.Symbol))
		}
		symbols[tok.Symbol] = struct{}{}
		if !common.IsHexAddress(tok.Address) {
			errors = append(errors, fmt.Sprintf("tokens[%d]: invalid address %q", i, tok.Address))
		}
	}

	// Gateways
	if len(c.Gateways) == 0 {
		errors = append(errors, "at least one gateway must be configured")
	}
	gateways := make(map[string]struct{}, len(c.Gateways))
	for i, gw := range c.Gateways {
		for _, err := range c.validateGateway(gw) {
			errors = append(errors, fmt.Sprintf("gateways[%d]: %s", i, err))
		}
		gateways[gw.Name] = struct{}{}
	}
	if c.Gateway != "" {
		if _, ok := gateways[c.Gateway]; !ok {
			errors = append(errors, fmt.Sprintf("gateway %q is not configured", c.Gateway))
		}
	}

	// DEXes
	if len(c.DEXes) == 0 {
		errors = append(errors, "at least one dex must be configured")
	}
	dexes := make(map[string]struct{}, len(c.DEXes))
	for i, d := range c.DEXes {
		if _, dup := dexes[d.Name]; dup {
			errors = append(errors, fmt.Sprintf("dexes[%d]: duplicate name %q", i, d.Name))
		}
		dexes[d.Name] = struct{}{}
		for _, err := range c.validateDEX(d) {
			errors = append(errors, fmt.Sprintf("dexes[%d]: %s", i, err))
		}
	}

	for i, caller := range c.AuthorizedCallers {
		if !common.IsHexAddress(caller) {
			errors = append(errors, fmt.Sprintf("authorized_callers[%d]: invalid address %q", i, caller))
		}
	}

	// Requests
	for i, r := range c.Requests {
		for _, err := range c.validateRequest(r, dexes) {
			errors = append(errors, fmt.Sprintf("requests[%d]: %s", i, err))
		}
	}

	if c.HTTPAddr == "" {
		errors = append(errors, "http_addr must be specified")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (c *Config) validateGateway(gw GatewayConfig) []string {
	var errors []string
	kind, err := flashloan.ParseKind(gw.Kind)
	if err != nil {
		errors = append(errors, err.Error())
	}
	if gw.Name == "" {
		errors = append(errors, "name must be specified")
	}
	if gw.Address != "" && !common.IsHexAddress(gw.Address) {
		errors = append(errors, fmt.Sprintf("invalid address %q", gw.Address))
	}
	if err == nil && kind == flashloan.KindAave && gw.Address == "" {
		errors = append(errors, "aave gateways need an address")
	}
	if err == nil && kind == flashloan.KindBalancer && gw.PremiumBps != 0 {
		errors = append(errors, "balancer gateways do not charge a premium")
	}
	if gw.PremiumBps > 10000 {
		errors = append(errors, "premium_bps cannot exceed 10000")
	}
	if gw.MaxLoanPercentage > 100 {
		errors = append(errors, "max_loan_percentage cannot exceed 100")
	}
	errors = append(errors, c.validateAmounts(gw.Liquidity)...)
	return errors
}

func (c *Config) validateDEX(d DEXConfig) []string {
	var errors []string
	if d.Name == "" {
		errors = append(errors, "name must be specified")
	}
	if d.Address != "" && !common.IsHexAddress(d.Address) {
		errors = append(errors, fmt.Sprintf("invalid address %q", d.Address))
	}

	switch d.Kind {
	case DEXKindUniswap:
		if d.Factory != "" && !common.IsHexAddress(d.Factory) {
			errors = append(errors, fmt.Sprintf("invalid factory %q", d.Factory))
		}
		if _, err := c.TokenAddress(d.TokenA); err != nil {
			errors = append(errors, err.Error())
		}
		if _, err := c.TokenAddress(d.TokenB); err != nil {
			errors = append(errors, err.Error())
		}
		if d.FeeBps >= 10000 {
			errors = append(errors, "fee_bps must be below 10000")
		}
		if len(d.Rates) > 0 {
			errors = append(errors, "uniswap pools price from reserves and take no rates")
		}
	case DEXKindOracle:
		if d.Address == "" {
			errors = append(errors, "oracle pools need an address")
		}
		for _, r := range d.Rates {
			if _, err := c.TokenAddress(r.TokenIn); err != nil {
				errors = append(errors, err.Error())
			}
			if _, err := c.TokenAddress(r.TokenOut); err != nil {
				errors = append(errors, err.Error())
			}
			if _, err := arbmath.ParseUnits(r.Rate, arbmath.Decimals); err != nil {
				errors = append(errors, err.Error())
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown dex kind %q", d.Kind))
	}

	errors = append(errors, c.validateAmounts(d.Balances)...)
	return errors
}

func (c *Config) validateRequest(r RequestConfig, dexes map[string]struct{}) []string {
	var errors []string
	if r.Caller != "" && !common.IsHexAddress(r.Caller) {
		errors = append(errors, fmt.Sprintf("invalid caller %q", r.Caller))
	}
	for _, ref := range []string{r.TokenA, r.TokenB} {
		if _, err := c.TokenAddress(ref); err != nil {
			errors = append(errors, err.Error())
		}
	}
	for _, ref := range []string{r.DexBuy, r.DexSell} {
		if _, ok := dexes[ref]; !ok && !common.IsHexAddress(ref) {
			errors = append(errors, fmt.Sprintf("unknown dex %q", ref))
		}
	}
	if _, err := arbmath.ParseUnits(r.AmountIn, arbmath.Decimals); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := r.Lifetime(); err != nil {
		errors = append(errors, err.Error())
	}
	return errors
}

func (c *Config) validateAmounts(amounts map[string]string) []string {
	var errors []string
	for ref, amount := range amounts {
		if _, err := c.TokenAddress(ref); err != nil {
			errors = append(errors, err.Error())
		}
		if _, err := arbmath.ParseUnits(amount, arbmath.Decimals); err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// TokenAddress resolves a token symbol or hex address
func (c *Config) TokenAddress(ref string) (common.Address, error) {
	for _, tok := range c.Tokens {
		if tok.Symbol == ref {
			return common.HexToAddress(tok.Address), nil
		}
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown token %q", ref)
}

// OwnerAddress returns the parsed owner
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// DefaultRequestTTL is used by requests without a ttl
const DefaultRequestTTL = time.Minute

// Lifetime parses TTL, the time from submission to the request deadline
func (r RequestConfig) Lifetime() (time.Duration, error) {
	if r.TTL == "" {
		return DefaultRequestTTL, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", r.TTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %s", r.TTL)
	}
	return d, nil
}
