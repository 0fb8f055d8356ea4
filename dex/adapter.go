package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// SwapAdapter routes swaps to registered exchanges by address. A swap
// either pays a positive output to the recipient or leaves every balance
// untouched.
type SwapAdapter struct {
	mu        sync.RWMutex
	exchanges map[common.Address]Exchange
	ledger    *ledger.Ledger
	metrics   *metrics.SwapMetrics
	logger    *zap.Logger
}

// NewSwapAdapter creates a swap adapter over the ledger
func NewSwapAdapter(l *ledger.Ledger, m *metrics.SwapMetrics, logger *zap.Logger) (*SwapAdapter, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewSwapMetrics(nil, metrics.Namespace)
	}
	return &SwapAdapter{
		exchanges: make(map[common.Address]Exchange),
		ledger:    l,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Register makes ex reachable at its address
func (a *SwapAdapter) Register(ex Exchange) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.exchanges[ex.Address()]; ok {
		return fmt.Errorf("exchange %s already registered at %s", existing.GetName(), ex.Address().Hex())
	}
	a.exchanges[ex.Address()] = ex
	a.logger.Info("Registered exchange",
		zap.String("name", ex.GetName()),
		zap.String("address", ex.Address().Hex()))
	return nil
}

func (a *SwapAdapter) Exchange(addr common.Address) (Exchange, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ex, ok := a.exchanges[addr]
	return ex, ok
}

// Exchanges lists registered exchanges in address order
func (a *SwapAdapter) Exchanges() []Exchange {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Exchange, 0, len(a.exchanges))
	for _, ex := range a.exchanges {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Address(), out[j].Address()
		return bytes.Compare(ai[:], aj[:]) < 0
	})
	return out
}

// Quote prices a swap on dex without moving funds
func (a *SwapAdapter) Quote(ctx context.Context, dex, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	ex, ok := a.Exchange(dex)
	if !ok {
		return nil, fmt.Errorf("%w: no exchange at %s", types.ErrSwapFailed, dex.Hex())
	}
	out, err := ex.GetAmountOut(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s quote: %w", types.ErrSwapFailed, ex.GetName(), err)
	}
	return out, nil
}

// Swap moves amountIn of tokenIn from caller into dex and returns the
// tokenOut amount credited to recipient. Output must be positive.
func (a *SwapAdapter) Swap(ctx context.Context, caller, dex, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	ex, ok := a.Exchange(dex)
	if !ok {
		return nil, fmt.Errorf("%w: no exchange at %s", types.ErrSwapFailed, dex.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", types.ErrSwapFailed)
	}

	name := ex.GetName()
	snap := a.ledger.Snapshot()
	fail := func(err error) (*big.Int, error) {
		if rerr := a.ledger.RevertToSnapshot(snap); rerr != nil {
			a.logger.Error("Failed to revert swap", zap.Error(rerr))
		}
		a.metrics.Failures.WithLabelValues(name).Inc()
		a.logger.Debug("Swap failed", zap.String("dex", name), zap.Error(err))
		return nil, err
	}

	before := a.ledger.BalanceOf(tokenOut, recipient)

	if err := a.ledger.Transfer(tokenIn, caller, ex.Address(), amountIn); err != nil {
		return fail(fmt.Errorf("%w: %s: %w", types.ErrSwapFailed, name, err))
	}

	out, err := ex.Swap(ctx, tokenIn, tokenOut, amountIn, recipient)
	if err != nil {
		return fail(fmt.Errorf("%w: %s: %w", types.ErrSwapFailed, name, err))
	}
	if out == nil || out.Sign() <= 0 {
		return fail(fmt.Errorf("%w: %s returned no output", types.ErrSwapFailed, name))
	}

	// the recipient must actually hold what the exchange claims to have paid
	received := new(big.Int).Sub(a.ledger.BalanceOf(tokenOut, recipient), before)
	if tokenIn == tokenOut && caller == recipient {
		received.Add(received, amountIn)
	}
	if received.Cmp(out) != 0 {
		return fail(fmt.Errorf("%w: %s reported %s but paid %s", types.ErrSwapFailed, name, out, received))
	}

	if err := a.ledger.Commit(snap); err != nil {
		return fail(fmt.Errorf("failed to commit swap: %w", err))
	}

	a.metrics.Swaps.WithLabelValues(name).Inc()
	a.logger.Debug("Swap executed",
		zap.String("dex", name),
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", out.String()))
	return out, nil
}
