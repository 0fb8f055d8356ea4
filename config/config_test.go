package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
owner: "0x0000000000000000000000000000000000000a11"
tokens:
  - {symbol: TKA, address: "0x00000000000000000000000000000000000000a1"}
  - {symbol: TKB, address: "0x00000000000000000000000000000000000000b1"}
gateways:
  - kind: aave
    name: aave
    address: "0x0000000000000000000000000000000000000aa7"
    premium_bps: 9
    liquidity: {TKA: "1000"}
dexes:
  - name: buy
    kind: oracle
    address: "0x00000000000000000000000000000000000d0001"
    rates: [{token_in: TKA, token_out: TKB, rate: "1.1"}]
    balances: {TKB: "1000"}
  - name: pair
    kind: uniswap
    token_a: TKA
    token_b: TKB
    balances: {TKA: "10", TKB: "20"}
requests:
  - {token_a: TKA, token_b: TKB, dex_buy: buy, dex_sell: pair, amount_in: "1.5", ttl: 10s}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0xa11"), cfg.OwnerAddress())
	assert.Equal(t, "retain", cfg.ProfitPolicy)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1024, cfg.ResultCacheSize)
	require.Len(t, cfg.Gateways, 1)
	assert.Equal(t, uint64(9), cfg.Gateways[0].PremiumBps)
	require.Len(t, cfg.DEXes, 2)
	assert.Equal(t, "1.1", cfg.DEXes[0].Rates[0].Rate)

	ttl, err := cfg.Requests[0].Lifetime()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, ttl)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvOwner, "0x0000000000000000000000000000000000000b0b")
	t.Setenv(EnvHTTPAddr, "127.0.0.1:9000")
	t.Setenv(EnvProfitPolicy, "forward")
	t.Setenv(EnvPostgresDSN, "postgres://localhost/arb")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0xb0b"), cfg.OwnerAddress())
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "forward", cfg.ProfitPolicy)
	assert.Equal(t, "postgres://localhost/arb", cfg.PostgresDSN)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ARB_LOG_FILE=from-dotenv.log\n"), 0o600))
	t.Setenv(EnvLogFile, "")
	require.NoError(t, os.Unsetenv(EnvLogFile))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv.log", GetEnvWithDefault(EnvLogFile, "default.log"))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ZeroOwner", func(c *Config) { c.Owner = "0x0000000000000000000000000000000000000000" }, "owner must be a non-zero address"},
		{"BadPolicy", func(c *Config) { c.ProfitPolicy = "burn" }, `unknown profit policy "burn"`},
		{"NoGateways", func(c *Config) { c.Gateways = nil }, "at least one gateway"},
		{"BalancerPremium", func(c *Config) {
			c.Gateways = append(c.Gateways, GatewayConfig{Kind: "balancer", Name: "bal", PremiumBps: 5})
		}, "balancer gateways do not charge a premium"},
		{"UnknownGatewayKind", func(c *Config) { c.Gateways[0].Kind = "dydx" }, "unknown flash loan provider"},
		{"PinnedGatewayMissing", func(c *Config) { c.Gateway = "maker" }, `gateway "maker" is not configured`},
		{"UnknownDEXKind", func(c *Config) { c.DEXes[0].Kind = "curve" }, `unknown dex kind "curve"`},
		{"DuplicateDEX", func(c *Config) { c.DEXes[1].Name = "buy" }, `duplicate name "buy"`},
		{"OracleWithoutAddress", func(c *Config) { c.DEXes[0].Address = "" }, "oracle pools need an address"},
		{"BadRate", func(c *Config) { c.DEXes[0].Rates[0].Rate = "fast" }, "failed to parse amount"},
		{"UnknownToken", func(c *Config) { c.Requests[0].TokenA = "DOGE" }, `unknown token "DOGE"`},
		{"UnknownRequestDEX", func(c *Config) { c.Requests[0].DexSell = "nowhere" }, `unknown dex "nowhere"`},
		{"NegativeTTL", func(c *Config) { c.Requests[0].TTL = "-1s" }, "ttl must be positive"},
		{"BadCaller", func(c *Config) { c.AuthorizedCallers = []string{"bob"} }, `invalid address "bob"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			require.NoError(t, cfg.ValidateConfig())

			tt.mutate(cfg)
			err = cfg.ValidateConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateConfigCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner must be a non-zero address")
	assert.Contains(t, err.Error(), "at least one gateway")
	assert.Contains(t, err.Error(), "at least one dex")
}

func TestTokenAddress(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	addr, err := cfg.TokenAddress("TKA")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa1"), addr)

	addr, err = cfg.TokenAddress("0x00000000000000000000000000000000000000c1")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xc1"), addr)

	_, err = cfg.TokenAddress("TKC")
	require.Error(t, err)
}
