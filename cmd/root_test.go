package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flasharb/simulator"
)

const testConfig = `
owner: "0x000000000000000000000000000000000000a11c"
tokens:
  - {symbol: TKA, address: "0x00000000000000000000000000000000000000a1"}
  - {symbol: TKB, address: "0x00000000000000000000000000000000000000b1"}
gateways:
  - {kind: balancer, name: vault, liquidity: {TKA: "1000"}}
dexes:
  - name: buy
    kind: oracle
    address: "0x00000000000000000000000000000000000d0001"
    rates: [{token_in: TKA, token_out: TKB, rate: "1.1"}]
    balances: {TKB: "1000"}
  - name: sell
    kind: oracle
    address: "0x00000000000000000000000000000000000d0002"
    rates: [{token_in: TKB, token_out: TKA, rate: "0.95"}]
    balances: {TKA: "1000"}
authorized_callers: ["0x000000000000000000000000000000000000a11c"]
requests:
  - {token_a: TKA, token_b: TKB, dex_buy: buy, dex_sell: sell, amount_in: "100"}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQuoteCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	out, err := execute(t, "quote", "--config", path, "--env", filepath.Join(dir, ".env"))
	require.NoError(t, err)

	var sims []*simulator.SimulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &sims))
	require.Len(t, sims, 1)
	assert.True(t, sims[0].Success)
	assert.Equal(t, "4500000000000000000", sims[0].Profit.String())
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	_, err := execute(t, "run", "--config", path, "--env", filepath.Join(dir, ".env"))
	require.NoError(t, err)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: nobody\n"), 0o600))

	_, err := execute(t, "run", "--config", path, "--env", filepath.Join(dir, ".env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
