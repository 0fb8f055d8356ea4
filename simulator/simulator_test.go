package simulator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/types"
)

var caller = common.HexToAddress("0x0000000000000000000000000000000000000b07")

// mockRunner returns the configured profit for each request's MinProfitBps
type mockRunner struct {
	profits map[uint64]*big.Int
	calls   int
}

func (m *mockRunner) Simulate(_ context.Context, _ common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	m.calls++
	profit, ok := m.profits[req.MinProfitBps]
	if !ok {
		return nil, types.ErrInsufficientProfit
	}
	return &types.ArbitrageResult{Profit: profit, Premium: new(big.Int)}, nil
}

func (m *mockRunner) CalculateProfit(_ context.Context, req *types.ArbitrageRequest) (*engine.Quote, error) {
	if req.AmountIn == nil {
		return nil, types.ErrInvalidRequest
	}
	return &engine.Quote{AmountIn: req.AmountIn}, nil
}

func TestSimulator(t *testing.T) {
	_, err := NewSimulator(nil, nil)
	require.Error(t, err)

	runner := &mockRunner{profits: map[uint64]*big.Int{
		1: big.NewInt(10),
		2: big.NewInt(30),
		3: big.NewInt(20),
	}}
	sim, err := NewSimulator(runner, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		res, err := sim.SimulateRequest(ctx, caller, &types.ArbitrageRequest{AmountIn: big.NewInt(5), MinProfitBps: 1})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "ok", res.Reason)
		assert.Equal(t, "10", res.Profit.String())
		require.NotNil(t, res.Quote)
		assert.Equal(t, "5", res.Quote.AmountIn.String())
	})

	t.Run("Reverted", func(t *testing.T) {
		res, err := sim.SimulateRequest(ctx, caller, &types.ArbitrageRequest{MinProfitBps: 9})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "insufficient_profit", res.Reason)
		assert.ErrorIs(t, res.Error, types.ErrInsufficientProfit)
		assert.Nil(t, res.Quote)
	})

	t.Run("Batch", func(t *testing.T) {
		reqs := []*types.ArbitrageRequest{
			{AmountIn: big.NewInt(1), MinProfitBps: 1},
			{AmountIn: big.NewInt(1), MinProfitBps: 9},
			{AmountIn: big.NewInt(1), MinProfitBps: 2},
			{AmountIn: big.NewInt(1), MinProfitBps: 3},
		}
		results, err := sim.SimulateBatch(ctx, caller, reqs)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, 2, Best(results))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := sim.SimulateRequest(cctx, caller, &types.ArbitrageRequest{})
		require.ErrorIs(t, err, context.Canceled)
	})

	assert.Equal(t, -1, Best([]*SimulationResult{{Success: false}}))
}
