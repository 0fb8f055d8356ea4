package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/types"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// Quote is the expected outcome of a request at current prices
type Quote struct {
	AmountIn   *big.Int `json:"amount_in"`
	AmountB    *big.Int `json:"amount_b"`
	AmountOut  *big.Int `json:"amount_out"`
	Premium    *big.Int `json:"premium"`
	Profit     *big.Int `json:"profit"`
	Required   *big.Int `json:"required"`
	ProfitBps  int64    `json:"profit_bps"`
	Profitable bool     `json:"profitable"`
	// Fundable is false when the gateway cannot lend AmountIn right now
	Fundable bool `json:"fundable"`
}

// CalculateProfit prices both legs and the loan premium without moving
// funds. Profit may be negative. Authorization and deadline are not checked.
func (e *Engine) CalculateProfit(ctx context.Context, req *types.ArbitrageRequest) (*Quote, error) {
	if req == nil || req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", types.ErrInvalidRequest)
	}
	for _, dex := range []common.Address{req.DexBuy, req.DexSell} {
		if !e.registry.IsSupportedDEX(dex) {
			return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedDEX, dex.Hex())
		}
	}

	premium, err := e.gateway.Premium(ctx, req.TokenA, req.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to get premium: %w", err)
	}
	liquidity, err := e.gateway.Liquidity(ctx, req.TokenA)
	if err != nil {
		return nil, fmt.Errorf("failed to get liquidity: %w", err)
	}
	amountB, err := e.swapper.Quote(ctx, req.DexBuy, req.TokenA, req.TokenB, req.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to quote buy: %w", err)
	}
	amountOut, err := e.swapper.Quote(ctx, req.DexSell, req.TokenB, req.TokenA, amountB)
	if err != nil {
		return nil, fmt.Errorf("failed to quote sell: %w", err)
	}

	profit := new(big.Int).Sub(amountOut, req.AmountIn)
	profit.Sub(profit, premium)
	required := req.RequiredProfit()

	return &Quote{
		AmountIn:   new(big.Int).Set(req.AmountIn),
		AmountB:    amountB,
		AmountOut:  amountOut,
		Premium:    premium,
		Profit:     profit,
		Required:   required,
		ProfitBps:  arbmath.ProfitBps(profit, req.AmountIn),
		Profitable: amountB.Sign() > 0 && amountOut.Sign() > 0 && profit.Cmp(required) >= 0,
		Fundable:   liquidity.Cmp(req.AmountIn) >= 0,
	}, nil
}
