package uniswap

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/ledger"
)

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	trader = common.HexToAddress("0x0000000000000000000000000000000000000777")
)

func newTestPair(t *testing.T) (*UniswapV2Pair, *ledger.Ledger) {
	l := ledger.New(zaptest.NewLogger(t))
	pair, err := NewUniswapV2Pair(PairConfig{TokenA: weth, TokenB: usdc, FeeBps: DefaultFeeBps}, l, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, l.Mint(weth, pair.Address(), big.NewInt(10_000)))
	require.NoError(t, l.Mint(usdc, pair.Address(), big.NewInt(5_000_000)))
	return pair, l
}

func TestPairFor(t *testing.T) {
	// USDC/WETH on mainnet
	want := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	assert.Equal(t, want, PairFor(MainnetFactory, weth, usdc))
	assert.Equal(t, want, PairFor(MainnetFactory, usdc, weth))

	token0, token1 := SortTokens(weth, usdc)
	assert.Equal(t, usdc, token0)
	assert.Equal(t, weth, token1)
}

func TestNewUniswapV2Pair(t *testing.T) {
	l := ledger.New(nil)

	_, err := NewUniswapV2Pair(PairConfig{TokenA: weth, TokenB: weth}, l, nil)
	require.Error(t, err)

	_, err = NewUniswapV2Pair(PairConfig{TokenA: weth, TokenB: usdc, FeeBps: 10000}, l, nil)
	require.Error(t, err)

	custom := common.HexToAddress("0x0000000000000000000000000000000000001234")
	pair, err := NewUniswapV2Pair(PairConfig{Name: "sushi", Address: custom, TokenA: weth, TokenB: usdc}, l, nil)
	require.NoError(t, err)
	assert.Equal(t, custom, pair.Address())
	assert.Equal(t, "sushi", pair.GetName())
}

func TestGetAmountOut(t *testing.T) {
	pair, _ := newTestPair(t)
	ctx := context.Background()

	out, err := pair.GetAmountOut(ctx, weth, usdc, big.NewInt(1_000))
	require.NoError(t, err)
	// 1000*9970*5000000 / (10000*10000 + 1000*9970)
	assert.Equal(t, "453305", out.String())

	in, err := pair.GetAmountIn(ctx, weth, usdc, out)
	require.NoError(t, err)
	assert.True(t, in.Cmp(big.NewInt(1_000)) <= 0)

	_, err = pair.GetAmountOut(ctx, weth, common.HexToAddress("0x01"), big.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = pair.GetAmountIn(ctx, weth, usdc, big.NewInt(5_000_000))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSwap(t *testing.T) {
	pair, l := newTestPair(t)
	ctx := context.Background()

	quoted, err := pair.GetAmountOut(ctx, weth, usdc, big.NewInt(1_000))
	require.NoError(t, err)

	// input has to be in the pair before Swap is called
	_, err = pair.Swap(ctx, weth, usdc, big.NewInt(1_000_000), trader)
	require.Error(t, err)

	require.NoError(t, l.Mint(weth, pair.Address(), big.NewInt(1_000)))
	out, err := pair.Swap(ctx, weth, usdc, big.NewInt(1_000), trader)
	require.NoError(t, err)
	assert.Equal(t, quoted, out)
	assert.Equal(t, out, l.BalanceOf(usdc, trader))

	reserves, err := pair.GetReserves(ctx)
	require.NoError(t, err)
	assert.Equal(t, "11000", reserves.Reserve1.String())
	assert.Equal(t, new(big.Int).Sub(big.NewInt(5_000_000), out), reserves.Reserve0)
}
