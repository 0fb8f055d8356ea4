package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

var (
	tokenIn  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenOut = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	caller   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	dexAddr  = common.HexToAddress("0x00000000000000000000000000000000000d0001")
)

// fakeExchange pays out a fixed multiple of the input
type fakeExchange struct {
	ledger   *ledger.Ledger
	mult     int64
	err      error
	underpay bool
}

func (f *fakeExchange) GetName() string         { return "fake" }
func (f *fakeExchange) Address() common.Address { return dexAddr }

func (f *fakeExchange) GetAmountOut(_ context.Context, _, _ common.Address, amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(amountIn, big.NewInt(f.mult)), nil
}

func (f *fakeExchange) Swap(ctx context.Context, in, out common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	amountOut, _ := f.GetAmountOut(ctx, in, out, amountIn)
	paid := amountOut
	if f.underpay {
		paid = new(big.Int).Sub(amountOut, big.NewInt(1))
	}
	if paid.Sign() > 0 {
		if err := f.ledger.Transfer(out, dexAddr, recipient, paid); err != nil {
			return nil, err
		}
	}
	return amountOut, nil
}

func newTestAdapter(t *testing.T, ex *fakeExchange) (*SwapAdapter, *ledger.Ledger, *metrics.SwapMetrics) {
	l := ledger.New(zaptest.NewLogger(t))
	ex.ledger = l
	require.NoError(t, l.Mint(tokenIn, caller, big.NewInt(100)))
	require.NoError(t, l.Mint(tokenOut, dexAddr, big.NewInt(1_000)))

	m := metrics.NewSwapMetrics(prometheus.NewRegistry(), "test")
	adapter, err := NewSwapAdapter(l, m, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, adapter.Register(ex))
	return adapter, l, m
}

func TestSwapAdapterRegister(t *testing.T) {
	_, err := NewSwapAdapter(nil, nil, nil)
	require.Error(t, err)

	adapter, _, _ := newTestAdapter(t, &fakeExchange{mult: 2})
	require.Error(t, adapter.Register(&fakeExchange{}))

	ex, ok := adapter.Exchange(dexAddr)
	require.True(t, ok)
	assert.Equal(t, "fake", ex.GetName())
	assert.Len(t, adapter.Exchanges(), 1)
}

func TestSwapAdapterSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		adapter, l, m := newTestAdapter(t, &fakeExchange{mult: 2})

		quoted, err := adapter.Quote(ctx, dexAddr, tokenIn, tokenOut, big.NewInt(40))
		require.NoError(t, err)
		assert.Equal(t, "80", quoted.String())

		out, err := adapter.Swap(ctx, caller, dexAddr, tokenIn, tokenOut, big.NewInt(40), caller)
		require.NoError(t, err)
		assert.Equal(t, "80", out.String())
		assert.Equal(t, "60", l.BalanceOf(tokenIn, caller).String())
		assert.Equal(t, "40", l.BalanceOf(tokenIn, dexAddr).String())
		assert.Equal(t, "80", l.BalanceOf(tokenOut, caller).String())
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Swaps.WithLabelValues("fake")))
	})

	failures := []struct {
		name   string
		ex     *fakeExchange
		amount int64
		dex    common.Address
	}{
		{"ZeroOutput", &fakeExchange{mult: 0}, 40, dexAddr},
		{"ExchangeError", &fakeExchange{mult: 2, err: errors.New("paused")}, 40, dexAddr},
		{"Underpays", &fakeExchange{mult: 2, underpay: true}, 40, dexAddr},
		{"CallerShort", &fakeExchange{mult: 2}, 101, dexAddr},
		{"NoAmount", &fakeExchange{mult: 2}, 0, dexAddr},
		{"UnknownExchange", &fakeExchange{mult: 2}, 40, common.HexToAddress("0xdead")},
		{"PoolShort", &fakeExchange{mult: 100}, 40, dexAddr},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			adapter, l, _ := newTestAdapter(t, tt.ex)

			_, err := adapter.Swap(ctx, caller, tt.dex, tokenIn, tokenOut, big.NewInt(tt.amount), caller)
			require.ErrorIs(t, err, types.ErrSwapFailed)

			assert.Equal(t, "100", l.BalanceOf(tokenIn, caller).String())
			assert.Equal(t, "0", l.BalanceOf(tokenIn, dexAddr).String())
			assert.Equal(t, "0", l.BalanceOf(tokenOut, caller).String())
			assert.Equal(t, "1000", l.BalanceOf(tokenOut, dexAddr).String())
			assert.Zero(t, l.JournalLength())
		})
	}
}

func TestSwapAdapterKeepsCause(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, &fakeExchange{mult: 2, err: types.ErrReentrancyDetected})

	_, err := adapter.Swap(context.Background(), caller, dexAddr, tokenIn, tokenOut, big.NewInt(1), caller)
	require.ErrorIs(t, err, types.ErrSwapFailed)
	require.ErrorIs(t, err, types.ErrReentrancyDetected)
	assert.Equal(t, "reentrancy_detected", types.Reason(err))
}
