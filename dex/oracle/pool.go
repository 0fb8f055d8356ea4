package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/ledger"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

var (
	ErrNoRate                = errors.New("no rate for pair")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

type pairKey struct {
	tokenIn  common.Address
	tokenOut common.Address
}

// Pool implements dex.Exchange at fixed, owner-set rates: amountIn of
// tokenIn buys amountIn * rate / 1e18 of tokenOut, paid from the pool's
// ledger balance.
type Pool struct {
	mu      sync.RWMutex
	name    string
	address common.Address
	rates   map[pairKey]*big.Int
	ledger  *ledger.Ledger
	logger  *zap.Logger
}

var _ dex.Exchange = (*Pool)(nil)

// NewPool creates a fixed-rate pool
func NewPool(name string, address common.Address, l *ledger.Ledger, logger *zap.Logger) (*Pool, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("pool address cannot be the zero address")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "oracle"
	}
	return &Pool{
		name:    name,
		address: address,
		rates:   make(map[pairKey]*big.Int),
		ledger:  l,
		logger:  logger,
	}, nil
}

func (p *Pool) GetName() string { return p.name }

func (p *Pool) Address() common.Address { return p.address }

// SetRate sets the price of tokenIn in tokenOut, 18-decimal fixed point.
// A zero rate makes every swap on the pair produce nothing.
func (p *Pool) SetRate(tokenIn, tokenOut common.Address, rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("invalid rate")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[pairKey{tokenIn, tokenOut}] = new(big.Int).Set(rate)

	p.logger.Debug("Rate updated",
		zap.String("pool", p.name),
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("rate", arbmath.FormatUnits(rate, arbmath.Decimals)))
	return nil
}

// Rate returns the configured rate for the pair
func (p *Pool) Rate(tokenIn, tokenOut common.Address) (*big.Int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate, ok := p.rates[pairKey{tokenIn, tokenOut}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(rate), true
}

func (p *Pool) GetAmountOut(_ context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	rate, ok := p.Rate(tokenIn, tokenOut)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRate, tokenIn.Hex(), tokenOut.Hex())
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, fmt.Errorf("invalid input amount")
	}
	return arbmath.MulWad(amountIn, rate), nil
}

func (p *Pool) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	amountOut, err := p.GetAmountOut(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return amountOut, nil
	}

	available := p.ledger.BalanceOf(tokenOut, p.address)
	if available.Cmp(amountOut) < 0 {
		return nil, fmt.Errorf("%w: %s holds %s, owes %s", ErrInsufficientLiquidity, p.name, available, amountOut)
	}
	if err := p.ledger.Transfer(tokenOut, p.address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("failed to pay out: %w", err)
	}
	return amountOut, nil
}
