package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange represents a decentralized exchange pool holding its inventory
// in the ledger under Address()
type Exchange interface {
	// GetName returns the exchange name
	GetName() string

	Address() common.Address

	// GetAmountOut quotes a swap without moving funds
	GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)

	// Swap pays the output for amountIn of tokenIn, which the caller has
	// already transferred to Address(), to recipient
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, recipient common.Address) (*big.Int, error)
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}
